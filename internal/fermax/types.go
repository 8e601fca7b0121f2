package fermax

import "sort"

// AccessID addresses a door within a Blue installation.
type AccessID struct {
	Block    int `json:"block"`
	SubBlock int `json:"subblock"`
	Number   int `json:"number"`
}

// Door is a single controllable access point. Identity is the pair
// (HomeID, ID); names may change between discovery calls and the
// latest name wins.
type Door struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	HomeID   string   `json:"home_id"`
	DeviceID string   `json:"device_id"`
	Access   AccessID `json:"access_id"`
}

// Home is an account-level dwelling with its doors. Accounts can hold
// several homes, each independent.
type Home struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Doors []Door `json:"doors"`
}

// pairing is the discovery wire format: one paired monitor per entry,
// with its reachable doors keyed by door slot.
type pairing struct {
	ID            string                `json:"id"`
	DeviceID      string                `json:"deviceId"`
	Tag           string                `json:"tag"`
	Home          string                `json:"home"`
	Address       string                `json:"address"`
	AccessDoorMap map[string]accessDoor `json:"accessDoorMap"`
}

type accessDoor struct {
	Title    string   `json:"title"`
	Visible  *bool    `json:"visible"`
	AccessID AccessID `json:"accessId"`
}

// homesFromPairings maps the discovery payload to the exposed model.
// Doors hidden by the installer (visible=false) are excluded, matching
// what the Blue app shows. Output order is deterministic.
func homesFromPairings(pairings []pairing) []Home {
	homes := make([]Home, 0, len(pairings))
	for _, p := range pairings {
		name := p.Home
		if name == "" {
			name = p.Tag
		}
		home := Home{ID: p.ID, Name: name}

		for key, door := range p.AccessDoorMap {
			if door.Visible != nil && !*door.Visible {
				continue
			}
			title := door.Title
			if title == "" {
				title = key
			}
			doorName := title
			if p.Tag != "" {
				doorName = p.Tag + " " + title
			}
			home.Doors = append(home.Doors, Door{
				ID:       key,
				Name:     doorName,
				HomeID:   p.ID,
				DeviceID: p.DeviceID,
				Access:   door.AccessID,
			})
		}

		sort.Slice(home.Doors, func(i, j int) bool {
			return home.Doors[i].ID < home.Doors[j].ID
		})
		homes = append(homes, home)
	}

	sort.Slice(homes, func(i, j int) bool {
		return homes[i].ID < homes[j].ID
	})
	return homes
}
