package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/shopspring/decimal"

	"risebot/internal/logger"
)

type Snapshot struct {
	Branches     map[string]map[int64]*Branch   `json:"branches"`
	NextBranchID map[string]int64               `json:"next_branch_id"`
	RiseAnchor   map[string]decimal.NullDecimal `json:"rise_anchor"`
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Branches:     map[string]map[int64]*Branch{},
		NextBranchID: map[string]int64{},
		RiseAnchor:   map[string]decimal.NullDecimal{},
	}
}

type Store struct {
	path string
	log  *logger.Logger
}

func NewStore(path string, log *logger.Logger) *Store {
	return &Store{path: path, log: log}
}

func (s *Store) Load() *Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.WithComponent("store").WithError(err).Warn("Не удалось прочитать файл состояния, старт с пустого состояния.")
		}
		return emptySnapshot()
	}

	snap := emptySnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		s.log.WithComponent("store").WithError(err).Warn("Файл состояния повреждён, старт с пустого состояния.")
		return emptySnapshot()
	}

	if snap.Branches == nil {
		snap.Branches = map[string]map[int64]*Branch{}
	}
	if snap.NextBranchID == nil {
		snap.NextBranchID = map[string]int64{}
	}
	if snap.RiseAnchor == nil {
		snap.RiseAnchor = map[string]decimal.NullDecimal{}
	}
	return snap
}

func (s *Store) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("Не удалось сериализовать состояние: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("Не удалось записать файл состояния: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("Не удалось обновить файл состояния: %w", err)
	}
	return nil
}
