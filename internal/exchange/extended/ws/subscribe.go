package ws

func (w *Client) SubscribeTickers(markets []string) error {
	w.markets = markets

	msg := SubscribeMessage{
		Type:    "SUBSCRIBE",
		Markets: markets,
	}

	return w.conn.WriteJSON(msg)
}
