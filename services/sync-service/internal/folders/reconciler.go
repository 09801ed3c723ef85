// Package folders reconciles the remote folder list of an origin with the local folders.
package folders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/provider"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
)

// Result counts the changes of one reconciliation
type Result struct {
	Created   int
	Updated   int
	Outdated  int
	Unchanged int
}

// Reconciler keeps the local top-level folders in line with the remote ones
type Reconciler struct {
	store  *store.Store
	roles  RoleTable
	logger *slog.Logger
	now    func() time.Time
}

func NewReconciler(s *store.Store, roles RoleTable, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  s,
		roles:  roles,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// remoteRoot is a remote folder without parent, as it would be stored
type remoteRoot struct {
	folder     models.RemoteFolder
	name       string
	role       synmodels.FolderType
	draftChild bool
}

// Reconcile fetches the remote folders and creates, updates or outdates
// local folders in one transaction. With bypassOutdated, local folders no
// longer seen remotely are left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, client provider.FolderAPI, origin *synmodels.Origin, bypassOutdated bool) (Result, error) {
	logger := r.logger.With("origin", origin.ID)

	remote, err := client.ListFolders(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list remote folders: %w", err)
	}
	roots := r.roots(remote)

	existing, err := r.store.ListTopLevelFolders(ctx, origin.ID)
	if err != nil {
		return Result{}, err
	}

	var (
		result  Result
		updates []*synmodels.Folder
		inserts []*synmodels.Folder
		matched = make(map[uuid.UUID]bool, len(existing))
		pending = make([]remoteRoot, 0, len(roots))
		now     = r.now()
	)

	apply := func(local *synmodels.Folder, root remoteRoot) {
		matched[local.ID] = true
		if r.refresh(local, root) {
			updates = append(updates, local)
			return
		}
		result.Unchanged++
	}

	// Same remote id first, so renamed folders keep their identity
	for _, root := range roots {
		if local := find(existing, matched, func(f *synmodels.Folder) bool {
			return f.FolderUID == root.folder.ID
		}); local != nil {
			apply(local, root)
			continue
		}
		pending = append(pending, root)
	}

	for _, root := range pending {
		if local := r.match(existing, matched, root); local != nil {
			apply(local, root)
			continue
		}

		f := &synmodels.Folder{
			ID:          uuid.New(),
			OriginID:    origin.ID,
			FolderUID:   root.folder.ID,
			Name:        root.name,
			FullName:    root.name,
			Type:        root.role,
			SyncEnabled: r.roles.SyncByDefault(root.role),
			CreatedAt:   now,
		}
		if origin.MailboxScoped() {
			start := now
			f.SyncStartDate = &start
		}
		inserts = append(inserts, f)
	}

	var outdated []*synmodels.Folder
	if !bypassOutdated {
		for i := range existing {
			if !matched[existing[i].ID] {
				outdated = append(outdated, &existing[i])
			}
		}
	}

	if len(outdated)+len(updates)+len(inserts) == 0 {
		return result, nil
	}

	err = r.store.InTx(ctx, func(tx *store.Tx) error {
		for _, f := range outdated {
			if err := tx.MarkFolderOutdated(ctx, f.ID, now); err != nil {
				return err
			}
		}
		for _, f := range updates {
			if err := tx.UpdateFolder(ctx, f); err != nil {
				return err
			}
		}
		for _, f := range inserts {
			if err := tx.InsertFolder(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to save folders: %w", err)
	}

	result.Created = len(inserts)
	result.Updated = len(updates)
	result.Outdated = len(outdated)
	for _, f := range outdated {
		logger.Info("folder no longer exists remotely", "folder", f.FullName)
	}
	logger.Debug("folders reconciled",
		"created", result.Created, "updated", result.Updated,
		"outdated", result.Outdated, "unchanged", result.Unchanged)
	return result, nil
}

// roots drops ignored and nested folders. A folder is nested only when the
// remote list holds its parent path; otherwise it is a root under its full
// path. The draft-like signal of dropped children is kept on their parent.
func (r *Reconciler) roots(remote []models.RemoteFolder) []remoteRoot {
	var roots []remoteRoot
	draftParents := make(map[string]bool)

	paths := make(map[string]bool, len(remote))
	for _, f := range remote {
		paths[strings.ToLower(folderPath(f.Name))] = true
	}

	for _, f := range remote {
		name := strings.TrimSpace(f.Name)
		if name == "" || strings.EqualFold(name, "all") {
			continue
		}

		path := folderPath(name)
		if i := strings.LastIndex(path, "/"); i >= 0 {
			parent := strings.ToLower(path[:i])
			if paths[parent] {
				if draftLike(path[i+1:]) {
					draftParents[parent] = true
				}
				continue
			}
		}
		if f.ParentID != "" {
			continue
		}

		roots = append(roots, remoteRoot{
			folder: f,
			name:   path,
			role:   r.roles.Classify(path),
		})
	}

	for i := range roots {
		roots[i].draftChild = draftParents[strings.ToLower(roots[i].name)]
	}
	return roots
}

// match finds the local folder a remote root corresponds to: by role for
// system folders, otherwise by normalized name or as drafts.
func (r *Reconciler) match(existing []synmodels.Folder, matched map[uuid.UUID]bool, root remoteRoot) *synmodels.Folder {
	if systemRole(root.role) {
		return find(existing, matched, func(f *synmodels.Folder) bool {
			return f.Type == root.role
		})
	}

	remoteDraft := draftLike(root.name) || root.draftChild
	return find(existing, matched, func(f *synmodels.Folder) bool {
		if f.Type != synmodels.FolderOther {
			return false
		}
		return normalize(f.Name) == normalize(root.name) || (remoteDraft && draftLike(f.Name))
	})
}

// refresh copies the remote attributes onto local and reports whether anything changed
func (r *Reconciler) refresh(local *synmodels.Folder, root remoteRoot) bool {
	changed := false
	if local.Name != root.name {
		local.Name = root.name
		changed = true
	}
	if local.FullName != root.name {
		local.FullName = root.name
		changed = true
	}
	if local.FolderUID != root.folder.ID {
		local.FolderUID = root.folder.ID
		changed = true
	}
	if local.Type != root.role {
		local.Type = root.role
		changed = true
	}
	return changed
}

func find(existing []synmodels.Folder, matched map[uuid.UUID]bool, pred func(*synmodels.Folder) bool) *synmodels.Folder {
	for i := range existing {
		f := &existing[i]
		if f.ParentID.Valid || matched[f.ID] {
			continue
		}
		if pred(f) {
			return f
		}
	}
	return nil
}

// folderPath is a remote name with "/" as the only separator
func folderPath(name string) string {
	return strings.Trim(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"), "/")
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(name, "_", " ")))
}

func draftLike(name string) bool {
	return strings.Contains(strings.ToLower(name), "draft")
}
