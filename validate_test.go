package farmsync

import (
	"errors"
	"testing"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"2024-03-15", "2024-03-15", false},
		{"15/03/2024", "2024-03-15", false},
		{"5/1/2022", "2022-01-05", false},
		{" 2024-03-15 ", "2024-03-15", false},
		{"2024-03-15T10:30:00Z", "2024-03-15", false},
		{"31/02/2024", "", true},
		{"2024-13-01", "", true},
		{"soon", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_EventsRequireAnimalAndDate(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string
	}{
		{"service without animal", &BreedingService{Date: "2024-01-01"}, "id_animal"},
		{"service without date", &BreedingService{AnimalID: 1}, "fecha_servicio"},
		{"diagnostic without date", &Diagnostic{AnimalID: 1}, "fecha_diagnostico"},
		{"birth without date", &Birth{AnimalID: 1}, "fecha_parto"},
		{"milking without date", &Milking{AnimalID: 1}, "fecha_ordena"},
		{"treatment without start", &Treatment{AnimalID: 1}, "fecha_inicio"},
		{"treatment bad end", &Treatment{AnimalID: 1, StartDate: "2024-01-01", EndDate: "later"}, "fecha_fin"},
		{"dry-off without animal", &DryOff{}, "id_animal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var recErr *RecordError
			if err := tt.rec.normalize(); !errors.As(err, &recErr) || recErr.Field != tt.field {
				t.Errorf("normalize() = %v, want RecordError on %s", err, tt.field)
			}
		})
	}
}

func TestNormalize_DryOffDatesOptional(t *testing.T) {
	d := &DryOff{AnimalID: 1, PlannedDate: "01/06/2024"}
	if err := d.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if d.PlannedDate != "2024-06-01" || d.ActualDate != "" {
		t.Errorf("dates = %q %q", d.PlannedDate, d.ActualDate)
	}
}

func TestNormalize_MilkingKeepsExplicitTotal(t *testing.T) {
	am, total := 5.0, 12.0
	m := &Milking{AnimalID: 1, Date: "2024-01-01", LitersAM: &am, TotalLiters: &total}
	if err := m.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if *m.TotalLiters != 12 {
		t.Errorf("TotalLiters = %v, want 12", *m.TotalLiters)
	}
}
