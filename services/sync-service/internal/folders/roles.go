package folders

import (
	"strings"

	"github.com/stoik/mailsync/services/sync-service/internal/models"
)

// RoleTable classifies folder names into roles. It is immutable once built.
type RoleTable struct {
	names         map[string]models.FolderType
	junkAliases   []string
	syncByDefault map[models.FolderType]bool
}

// NewRoleTable builds a table from role names, junk aliases and the roles
// synced by default. Matching is case-insensitive.
func NewRoleTable(names map[models.FolderType][]string, junkAliases []string, syncByDefault map[models.FolderType]bool) RoleTable {
	t := RoleTable{
		names:         make(map[string]models.FolderType),
		syncByDefault: make(map[models.FolderType]bool, len(syncByDefault)),
	}
	for role, list := range names {
		for _, name := range list {
			t.names[strings.ToLower(strings.TrimSpace(name))] = role
		}
	}
	for _, alias := range junkAliases {
		t.junkAliases = append(t.junkAliases, strings.ToLower(alias))
	}
	for role, enabled := range syncByDefault {
		t.syncByDefault[role] = enabled
	}
	return t
}

func DefaultRoleTable() RoleTable {
	return NewRoleTable(
		map[models.FolderType][]string{
			models.FolderInbox: {"inbox"},
			models.FolderSent:  {"sent", "sent items", "sent mail", "sent messages"},
			models.FolderTrash: {"trash", "deleted items", "deleted messages", "bin"},
			models.FolderSpam:  {"spam", "junk", "junk email", "junk e-mail", "bulk mail"},
		},
		[]string{"junk", "spam", "bulk"},
		map[models.FolderType]bool{
			models.FolderInbox: true,
			models.FolderSent:  true,
			models.FolderOther: true,
		},
	)
}

// Classify returns the role of a folder name
func (t RoleTable) Classify(name string) models.FolderType {
	key := strings.ToLower(strings.TrimSpace(name))
	if role, ok := t.names[key]; ok {
		return role
	}
	for _, alias := range t.junkAliases {
		if strings.Contains(key, alias) {
			return models.FolderSpam
		}
	}
	return models.FolderOther
}

// SyncByDefault reports whether new folders of a role start sync-enabled
func (t RoleTable) SyncByDefault(role models.FolderType) bool {
	return t.syncByDefault[role]
}

// systemRole reports whether folders of the role are matched by role alone
func systemRole(role models.FolderType) bool {
	switch role {
	case models.FolderInbox, models.FolderSent, models.FolderTrash, models.FolderSpam:
		return true
	}
	return false
}
