package multichannel

// DeliveryRecord is the persisted view of the most recent delivery
// attempt for one conversation.
type DeliveryRecord struct {
	CaseKey        string `json:"case_key"`
	Transport      string `json:"transport"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	ChunkCount     int    `json:"chunk_count"`
	UpdatedUnixMs  int64  `json:"updated_unix_ms"`
}

// Domain is the multi-channel runtime's persisted domain state.
type Domain struct {
	Deliveries []DeliveryRecord `json:"deliveries"`
}

func (d *Domain) upsert(record DeliveryRecord) {
	for i := range d.Deliveries {
		if d.Deliveries[i].Transport == record.Transport && d.Deliveries[i].ConversationID == record.ConversationID {
			d.Deliveries[i] = record
			return
		}
	}
	d.Deliveries = append(d.Deliveries, record)
}
