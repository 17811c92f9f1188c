package farmsync

// Record is implemented by pointers to the entity types.
type Record interface {
	Meta() *SyncMeta
	table() tableSpec
	// fields returns the record's data columns.
	fields() Row
	setFields(Row)
	// normalize validates the record and fills defaults.
	normalize() error
}

// recordPtr constrains P to be *T implementing Record.
type recordPtr[T any] interface {
	*T
	Record
}

// decodeRecord builds a T from a full local or remote row.
func decodeRecord[T any, P recordPtr[T]](spec tableSpec, row Row) T {
	var rec T
	p := P(&rec)
	p.setFields(row)
	m := p.Meta()
	m.LocalID, _ = asInt(row[spec.idColumn])
	m.RemoteID = asIntPtr(row["remote_id"])
	m.SyncStatus = SyncStatus(asString(row["sync_status"]))
	m.SyncKey = asString(row["sync_key"])
	return rec
}

func (a *Animal) table() tableSpec { return animalTable }

func (a *Animal) fields() Row {
	return Row{
		"nombre":             nullable(a.Name),
		"id_siniiga":         nullable(a.SiniigaID),
		"id_interno":         a.InternalID,
		"raza":               nullable(a.Breed),
		"fecha_nacimiento":   nullable(a.BirthDate),
		"sexo":               nullable(a.Sex),
		"estado_fisiologico": nullable(a.PhysiologicalState),
		"estatus":            nullable(a.Status),
		"photo":              nullable(a.Photo),
		"location":           nullable(a.Location),
	}
}

func (a *Animal) setFields(r Row) {
	a.Name = asString(r["nombre"])
	a.SiniigaID = asString(r["id_siniiga"])
	a.InternalID = asString(r["id_interno"])
	a.Breed = asString(r["raza"])
	a.BirthDate = asString(r["fecha_nacimiento"])
	a.Sex = asString(r["sexo"])
	a.PhysiologicalState = asString(r["estado_fisiologico"])
	a.Status = asString(r["estatus"])
	a.Photo = asString(r["photo"])
	a.Location = asString(r["location"])
}

func (s *BreedingService) table() tableSpec { return breedingServiceTable }

func (s *BreedingService) fields() Row {
	return Row{
		"id_animal":      s.AnimalID,
		"fecha_servicio": s.Date,
		"tipo_servicio":  nullable(s.Type),
		"toro":           nullable(s.Bull),
		"notas":          nullable(s.Notes),
	}
}

func (s *BreedingService) setFields(r Row) {
	s.AnimalID, _ = asInt(r["id_animal"])
	s.Date = asString(r["fecha_servicio"])
	s.Type = asString(r["tipo_servicio"])
	s.Bull = asString(r["toro"])
	s.Notes = asString(r["notas"])
}

func (d *Diagnostic) table() tableSpec { return diagnosticTable }

func (d *Diagnostic) fields() Row {
	return Row{
		"id_animal":          d.AnimalID,
		"fecha_diagnostico":  d.Date,
		"resultado":          nullable(d.Result),
		"dias_post_servicio": nullInt(d.DaysPostService),
		"notas":              nullable(d.Notes),
	}
}

func (d *Diagnostic) setFields(r Row) {
	d.AnimalID, _ = asInt(r["id_animal"])
	d.Date = asString(r["fecha_diagnostico"])
	d.Result = asString(r["resultado"])
	d.DaysPostService = asIntPtr(r["dias_post_servicio"])
	d.Notes = asString(r["notas"])
}

func (b *Birth) table() tableSpec { return birthTable }

func (b *Birth) fields() Row {
	return Row{
		"id_animal":     b.AnimalID,
		"fecha_parto":   b.Date,
		"no_parto":      nullInt(b.Number),
		"problemas":     nullable(b.Problems),
		"dias_abiertos": nullInt(b.DaysOpen),
	}
}

func (b *Birth) setFields(r Row) {
	b.AnimalID, _ = asInt(r["id_animal"])
	b.Date = asString(r["fecha_parto"])
	b.Number = asIntPtr(r["no_parto"])
	b.Problems = asString(r["problemas"])
	b.DaysOpen = asIntPtr(r["dias_abiertos"])
}

func (m *Milking) table() tableSpec { return milkingTable }

func (m *Milking) fields() Row {
	return Row{
		"id_animal":     m.AnimalID,
		"fecha_ordena":  m.Date,
		"litros_am":     nullFloat(m.LitersAM),
		"litros_pm":     nullFloat(m.LitersPM),
		"total_litros":  nullFloat(m.TotalLiters),
		"dias_en_leche": nullInt(m.DaysInMilk),
	}
}

func (m *Milking) setFields(r Row) {
	m.AnimalID, _ = asInt(r["id_animal"])
	m.Date = asString(r["fecha_ordena"])
	m.LitersAM = asFloatPtr(r["litros_am"])
	m.LitersPM = asFloatPtr(r["litros_pm"])
	m.TotalLiters = asFloatPtr(r["total_litros"])
	m.DaysInMilk = asIntPtr(r["dias_en_leche"])
}

func (t *Treatment) table() tableSpec { return treatmentTable }

func (t *Treatment) fields() Row {
	return Row{
		"id_animal":    t.AnimalID,
		"fecha_inicio": t.StartDate,
		"fecha_fin":    nullable(t.EndDate),
		"descripcion":  nullable(t.Description),
		"medicamento":  nullable(t.Medication),
		"dosis":        nullable(t.Dose),
		"frecuencia":   nullable(t.Frequency),
		"notas":        nullable(t.Notes),
	}
}

func (t *Treatment) setFields(r Row) {
	t.AnimalID, _ = asInt(r["id_animal"])
	t.StartDate = asString(r["fecha_inicio"])
	t.EndDate = asString(r["fecha_fin"])
	t.Description = asString(r["descripcion"])
	t.Medication = asString(r["medicamento"])
	t.Dose = asString(r["dosis"])
	t.Frequency = asString(r["frecuencia"])
	t.Notes = asString(r["notas"])
}

func (d *DryOff) table() tableSpec { return dryOffTable }

func (d *DryOff) fields() Row {
	return Row{
		"id_animal":      d.AnimalID,
		"fecha_planeada": nullable(d.PlannedDate),
		"fecha_real":     nullable(d.ActualDate),
		"motivo":         nullable(d.Reason),
		"notas":          nullable(d.Notes),
	}
}

func (d *DryOff) setFields(r Row) {
	d.AnimalID, _ = asInt(r["id_animal"])
	d.PlannedDate = asString(r["fecha_planeada"])
	d.ActualDate = asString(r["fecha_real"])
	d.Reason = asString(r["motivo"])
	d.Notes = asString(r["notas"])
}
