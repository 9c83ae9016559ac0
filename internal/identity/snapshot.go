package identity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

// layouts accepted when reading timestamps. Files written by older deployments
// carry naive ISO-8601 values without an offset.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type isoTime struct{ time.Time }

func (t isoTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *isoTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("identity: invalid timestamp %q", raw)
}

type recordJSON struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	AddedDate   isoTime  `json:"added_date"`
	AddedBy     string   `json:"added_by"`
	LastUpdated *isoTime `json:"last_updated,omitempty"`
	UpdatedBy   string   `json:"updated_by,omitempty"`
}

type snapshotJSON struct {
	AuthorizedUsers map[string]recordJSON `json:"authorized_users"`
	LastUpdated     isoTime               `json:"last_updated"`
}

// EncodeSnapshot renders the snapshot in the persisted JSON layout.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	out := snapshotJSON{
		AuthorizedUsers: make(map[string]recordJSON, len(snap.Principals)),
		LastUpdated:     isoTime{snap.LastUpdated},
	}
	for _, p := range snap.Principals {
		rec := recordJSON{
			Name:      p.Name,
			Email:     p.Email,
			Role:      string(p.Role),
			AddedDate: isoTime{p.AddedAt},
			AddedBy:   p.AddedBy,
			UpdatedBy: p.UpdatedBy,
		}
		if !p.UpdatedAt.IsZero() {
			rec.LastUpdated = &isoTime{p.UpdatedAt}
		}
		out.AuthorizedUsers[p.ID] = rec
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecodeSnapshot parses the persisted JSON layout. Records carrying an unknown
// role are loaded as banned so that a corrupted entry never widens access.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return Snapshot{}, fmt.Errorf("identity: decode snapshot: %w", err)
	}
	snap := Snapshot{LastUpdated: in.LastUpdated.Time}
	for id, rec := range in.AuthorizedUsers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		role, err := rbac.ParseRole(rec.Role)
		if err != nil {
			role = rbac.RoleBanned
			snap.Demoted = append(snap.Demoted, id)
		}
		p := Principal{
			ID:        id,
			Name:      rec.Name,
			Email:     rec.Email,
			Role:      role,
			AddedAt:   rec.AddedDate.Time,
			AddedBy:   rec.AddedBy,
			UpdatedBy: rec.UpdatedBy,
		}
		if rec.LastUpdated != nil {
			p.UpdatedAt = rec.LastUpdated.Time
		}
		snap.Principals = append(snap.Principals, p)
	}
	sortPrincipals(snap.Principals)
	sort.Strings(snap.Demoted)
	return snap, nil
}

func sortPrincipals(ps []Principal) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
