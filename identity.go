package farmsync

import (
	"context"
	"fmt"

	"github.com/farmsync/farmsync/internal/remote"
)

// parentResolver maps a local animal id to the animal's remote id during an
// upload pass. Lookups by id_interno are cached for the pass.
type parentResolver struct {
	store  *Store
	remote remote.Store
	byTag  map[string]int64
}

func newParentResolver(store *Store, rs remote.Store) *parentResolver {
	return &parentResolver{store: store, remote: rs, byTag: map[string]int64{}}
}

func (p *parentResolver) resolve(ctx context.Context, localAnimalID int64) (int64, error) {
	row, err := p.store.GetFirst(ctx, "SELECT id_interno, remote_id FROM Animales WHERE id_animal = ?", localAnimalID)
	if err != nil {
		return 0, fmt.Errorf("read parent animal: %w", err)
	}
	if row == nil {
		return 0, fmt.Errorf("%w: animal #%d does not exist", ErrParentNotSynced, localAnimalID)
	}
	if rid, ok := asInt(row["remote_id"]); ok {
		return rid, nil
	}

	tag := asString(row["id_interno"])
	if rid, ok := p.byTag[tag]; ok {
		return rid, nil
	}
	rows, err := p.remote.Select(ctx, animalTable.remote(), remote.Filter{"id_interno": tag})
	if err != nil {
		return 0, fmt.Errorf("look up parent %q: %w", tag, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: animal %q", ErrParentNotSynced, tag)
	}
	rid, ok := asInt(rows[0][animalTable.idColumn])
	if !ok {
		return 0, fmt.Errorf("look up parent %q: remote row has no id", tag)
	}
	p.byTag[tag] = rid

	if _, err := p.store.Run(ctx, "UPDATE Animales SET remote_id = COALESCE(remote_id, ?) WHERE id_animal = ?",
		rid, localAnimalID); err != nil {
		return 0, fmt.Errorf("link parent %q: %w", tag, err)
	}
	return rid, nil
}

// animalIndex maps remote animal ids to local ones during a download pass.
type animalIndex struct {
	store  *Store
	remote remote.Store
	tags   map[int64]string
}

func newAnimalIndex(store *Store, rs remote.Store) *animalIndex {
	return &animalIndex{store: store, remote: rs, tags: map[int64]string{}}
}

func (a *animalIndex) remember(remoteID int64, tag string) {
	a.tags[remoteID] = tag
}

// localID returns the local id of the animal with remoteID, looking the
// animal up remotely if this pass has not seen it.
func (a *animalIndex) localID(ctx context.Context, remoteID int64) (int64, error) {
	row, err := a.store.GetFirst(ctx, "SELECT id_animal FROM Animales WHERE remote_id = ?", remoteID)
	if err != nil {
		return 0, err
	}
	if row != nil {
		id, _ := asInt(row["id_animal"])
		return id, nil
	}

	tag, ok := a.tags[remoteID]
	if !ok {
		rows, err := a.remote.Select(ctx, animalTable.remote(), remote.Filter{animalTable.idColumn: remoteID})
		if err != nil {
			return 0, fmt.Errorf("look up animal %d: %w", remoteID, err)
		}
		if len(rows) == 0 {
			return 0, fmt.Errorf("%w: remote animal %d", ErrNotFound, remoteID)
		}
		tag = asString(rows[0]["id_interno"])
		a.tags[remoteID] = tag
	}

	row, err = a.store.GetFirst(ctx, "SELECT id_animal FROM Animales WHERE id_interno = ?", tag)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, fmt.Errorf("%w: animal %q not present locally", ErrNotFound, tag)
	}
	id, _ := asInt(row["id_animal"])
	return id, nil
}
