package credit

import (
	"encoding/json"
	"fmt"
	"time"

	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
)

// recordRow is the JSON document stored per user.
type recordRow struct {
	Name            string            `json:"name"`
	Balance         int64             `json:"balance"`
	Cap             int64             `json:"cap"`
	GrantValue      int64             `json:"grant_value"`
	GrantInterval   int64             `json:"grant_interval"`
	GrantLastUpdate string            `json:"grant_last_update"`
	LeaseBills      map[string]string `json:"lease_bills"`
}

// recordToJSON converts a domain Record to its stored form.
func recordToJSON(r *domcredit.Record) ([]byte, error) {
	bills := r.LeaseBills()
	row := recordRow{
		Name:            r.Name(),
		Balance:         r.Balance(),
		Cap:             r.Cap(),
		GrantValue:      r.GrantValue(),
		GrantInterval:   r.GrantInterval(),
		GrantLastUpdate: r.GrantLastUpdate().UTC().Format(time.RFC3339Nano),
		LeaseBills:      make(map[string]string, len(bills)),
	}
	for id, t := range bills {
		row.LeaseBills[id] = t.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal credit record: %w", err)
	}
	return data, nil
}

// recordFromJSON hydrates a domain Record from its stored form.
func recordFromJSON(data []byte) (domcredit.Record, error) {
	var row recordRow
	if err := json.Unmarshal(data, &row); err != nil {
		return domcredit.Record{}, fmt.Errorf("unmarshal credit record: %w", err)
	}

	last, err := time.Parse(time.RFC3339Nano, row.GrantLastUpdate)
	if err != nil {
		return domcredit.Record{}, fmt.Errorf("invalid grant_last_update: %w", err)
	}

	bills := make(map[string]time.Time, len(row.LeaseBills))
	for id, s := range row.LeaseBills {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return domcredit.Record{}, fmt.Errorf("invalid lease bill %s: %w", id, err)
		}
		bills[id] = t
	}

	return domcredit.Reconstruct(
		row.Name, row.Balance, row.Cap, row.GrantValue, row.GrantInterval, last, bills,
	), nil
}
