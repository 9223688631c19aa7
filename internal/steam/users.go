package steam

import (
	"regexp"
	"sort"
	"strconv"
)

// User is one login record from loginusers.vdf.
type User struct {
	SteamID     string `json:"steamId"`
	AccountName string `json:"accountName"`
	PersonaName string `json:"personaName"`
	MostRecent  bool   `json:"mostRecent"`
	Timestamp   int64  `json:"timestamp"`
}

// Login records are flat leaf blocks, so non-nested matching is sufficient
// here. Field lookups are case-insensitive because Steam has shipped both
// spellings over the years.
var (
	recordRe     = regexp.MustCompile(`(?s)"(\d+)"\s*\{([^}]+)\}`)
	accountRe    = regexp.MustCompile(`(?i)"AccountName"\s+"([^"]+)"`)
	personaRe    = regexp.MustCompile(`(?i)"PersonaName"\s+"([^"]+)"`)
	mostRecentRe = regexp.MustCompile(`(?i)"mostrecent"\s+"([^"]+)"`)
	timestampRe  = regexp.MustCompile(`(?i)"Timestamp"\s+"([^"]+)"`)
)

// ExtractUsers pulls every login record out of loginusers.vdf content.
// A block without AccountName is not a user and is dropped. PersonaName
// defaults to AccountName, mostrecent to false, Timestamp to 0. The result
// is sorted by Timestamp descending; ties keep source order. Malformed
// input never fails, it degrades to an empty or partial list.
func ExtractUsers(content string) []User {
	matches := recordRe.FindAllStringSubmatch(content, -1)
	users := make([]User, 0, len(matches))
	for _, m := range matches {
		body := m[2]
		am := accountRe.FindStringSubmatch(body)
		if am == nil {
			continue
		}
		u := User{
			SteamID:     m[1],
			AccountName: am[1],
			PersonaName: am[1],
		}
		if pm := personaRe.FindStringSubmatch(body); pm != nil {
			u.PersonaName = pm[1]
		}
		if rm := mostRecentRe.FindStringSubmatch(body); rm != nil {
			u.MostRecent = rm[1] == "1"
		}
		if tm := timestampRe.FindStringSubmatch(body); tm != nil {
			if ts, err := strconv.ParseInt(tm[1], 10, 64); err == nil {
				u.Timestamp = ts
			}
		}
		users = append(users, u)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Timestamp > users[j].Timestamp
	})
	return users
}
