package farmsync

import (
	"context"
	"strings"
)

// RecordService is the CRUD surface for one entity type. Offline mode
// backs it with the local store; direct mode talks to the remote store.
type RecordService[T any] interface {
	GetAll(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id int64) (*T, error)
	// ForAnimal returns the records belonging to one animal.
	ForAnimal(ctx context.Context, animalID int64) ([]T, error)
	Insert(ctx context.Context, rec *T) (*T, error)
	// Update replaces the data fields of the record identified by
	// rec's LocalID.
	Update(ctx context.Context, rec *T) (*T, error)
	Delete(ctx context.Context, id int64) error
}

// Records groups the services for every entity type.
type Records struct {
	Animals          RecordService[Animal]
	BreedingServices RecordService[BreedingService]
	Diagnostics      RecordService[Diagnostic]
	Births           RecordService[Birth]
	Milkings         RecordService[Milking]
	Treatments       RecordService[Treatment]
	DryOffs          RecordService[DryOff]
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func specOf[T any, P recordPtr[T]]() tableSpec {
	var zero T
	return P(&zero).table()
}

// prepare copies rec and normalizes the copy.
func prepare[T any, P recordPtr[T]](rec *T) (T, error) {
	if rec == nil {
		var zero T
		return zero, &RecordError{Entity: specOf[T, P]().kind, Field: "record", Message: "is required"}
	}
	out := *rec
	if err := P(&out).normalize(); err != nil {
		return out, err
	}
	return out, nil
}
