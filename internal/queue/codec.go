package queue

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/rebalancer/internal/domain"
)

func encodeEvent(ev *domain.Event) (string, error) {
	raw, err := msgpack.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}
	return string(raw), nil
}

func decodeEvent(raw string) (*domain.Event, error) {
	var ev domain.Event
	if err := msgpack.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Payload == nil {
		ev.Payload = domain.Payload{}
	}
	return &ev, nil
}

// peekDedupKey reads just the account and command out of an encoded event
// that failed to decode as a whole
func peekDedupKey(raw string) (string, bool) {
	var fields map[string]interface{}
	if err := msgpack.Unmarshal([]byte(raw), &fields); err != nil {
		return "", false
	}
	account, _ := fields["account_id"].(string)
	command, _ := fields["exec_command"].(string)
	if account == "" || command == "" {
		return "", false
	}
	cmd, err := domain.ParseCommand(command)
	if err != nil {
		return "", false
	}
	return domain.DedupKey(account, cmd), true
}

func encodeRecord(ev *domain.Event) (string, error) {
	raw, err := msgpack.Marshal(&recoveryRecord{
		EventID:     ev.ID,
		Payload:     ev.Payload,
		CreatedAt:   ev.CreatedAt,
		TimesQueued: ev.TimesQueued,
		Retries:     ev.Retries,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode recovery record for %s: %w", ev.ID, err)
	}
	return string(raw), nil
}

func decodeRecord(raw string) (*recoveryRecord, error) {
	var rec recoveryRecord
	if err := msgpack.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode recovery record: %w", err)
	}
	return &rec, nil
}

func toScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func fromScore(score float64) time.Time {
	return time.UnixMilli(int64(score)).UTC()
}
