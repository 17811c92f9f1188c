package farmsync

import "strings"

// tableSpec describes how one entity type is stored in both databases.
// Local tables use capitalized names; remote tables use the EntityKind.
type tableSpec struct {
	kind     EntityKind
	local    string
	idColumn string
	// columns are the data columns, excluding the primary key and sync
	// bookkeeping. Dependent tables list id_animal first.
	columns   []string
	dependent bool
	// matchColumns identify a dependent row within its animal when no
	// remote id or sync key links the two copies.
	matchColumns []string
}

var (
	animalTable = tableSpec{
		kind:     KindAnimal,
		local:    "Animales",
		idColumn: "id_animal",
		columns: []string{"nombre", "id_siniiga", "id_interno", "raza", "fecha_nacimiento",
			"sexo", "estado_fisiologico", "estatus", "photo", "location"},
	}
	breedingServiceTable = tableSpec{
		kind:         KindBreedingService,
		local:        "Servicios",
		idColumn:     "id_servicio",
		columns:      []string{"id_animal", "fecha_servicio", "tipo_servicio", "toro", "notas"},
		dependent:    true,
		matchColumns: []string{"fecha_servicio", "tipo_servicio"},
	}
	diagnosticTable = tableSpec{
		kind:         KindDiagnostic,
		local:        "Diagnosticos",
		idColumn:     "id_diagnostico",
		columns:      []string{"id_animal", "fecha_diagnostico", "resultado", "dias_post_servicio", "notas"},
		dependent:    true,
		matchColumns: []string{"fecha_diagnostico", "resultado"},
	}
	birthTable = tableSpec{
		kind:         KindBirth,
		local:        "Partos",
		idColumn:     "id_parto",
		columns:      []string{"id_animal", "fecha_parto", "no_parto", "problemas", "dias_abiertos"},
		dependent:    true,
		matchColumns: []string{"fecha_parto", "no_parto"},
	}
	milkingTable = tableSpec{
		kind:         KindMilking,
		local:        "Ordenas",
		idColumn:     "id_ordena",
		columns:      []string{"id_animal", "fecha_ordena", "litros_am", "litros_pm", "total_litros", "dias_en_leche"},
		dependent:    true,
		matchColumns: []string{"fecha_ordena"},
	}
	treatmentTable = tableSpec{
		kind:     KindTreatment,
		local:    "Tratamientos",
		idColumn: "id_tratamiento",
		columns: []string{"id_animal", "fecha_inicio", "fecha_fin", "descripcion", "medicamento",
			"dosis", "frecuencia", "notas"},
		dependent:    true,
		matchColumns: []string{"fecha_inicio", "medicamento"},
	}
	dryOffTable = tableSpec{
		kind:         KindDryOff,
		local:        "Secados",
		idColumn:     "id_secado",
		columns:      []string{"id_animal", "fecha_planeada", "fecha_real", "motivo", "notas"},
		dependent:    true,
		matchColumns: []string{"fecha_planeada", "motivo"},
	}
)

// syncTables lists every table in dependency order: animals before the
// events that reference them.
var syncTables = []tableSpec{
	animalTable,
	breedingServiceTable,
	diagnosticTable,
	birthTable,
	milkingTable,
	treatmentTable,
	dryOffTable,
}

// SyncOrder returns the entity kinds in the order sync passes visit them.
func SyncOrder() []EntityKind {
	kinds := make([]EntityKind, len(syncTables))
	for i, t := range syncTables {
		kinds[i] = t.kind
	}
	return kinds
}

// RemoteIDColumn returns the primary key column of kind's table.
func RemoteIDColumn(kind EntityKind) string {
	if t, ok := tableFor(kind); ok {
		return t.idColumn
	}
	return ""
}

func tableFor(kind EntityKind) (tableSpec, bool) {
	for _, t := range syncTables {
		if t.kind == kind {
			return t, true
		}
	}
	return tableSpec{}, false
}

func (t tableSpec) remote() string { return string(t.kind) }

// conflictKey is the remote column an upsert without a known remote id
// matches on.
func (t tableSpec) conflictKey() string {
	if t.dependent {
		return "sync_key"
	}
	return "id_interno"
}

// selectList is the column list for reading full local rows.
func (t tableSpec) selectList() string {
	cols := append([]string{t.idColumn}, t.columns...)
	cols = append(cols, "sync_status", "remote_id", "revision")
	if t.dependent {
		cols = append(cols, "sync_key")
	}
	return strings.Join(cols, ", ")
}

// data copies the data columns out of a full row.
func (t tableSpec) data(row Row) Row {
	out := make(Row, len(t.columns))
	for _, c := range t.columns {
		out[c] = row[c]
	}
	return out
}
