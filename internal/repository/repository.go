package repository

import "database/sql"

// Repositories the four stores the lunch engine works against
type Repositories struct {
	Persons   PersonsRepository
	Shifts    ShiftsRepository
	Schedules SchedulesRepository
	Breaks    BreaksRepository
}

// NewPostgres Postgres-backed repositories sharing db
func NewPostgres(db *sql.DB) *Repositories {
	return &Repositories{
		Persons:   NewPostgresPersonsRepository(db),
		Shifts:    NewPostgresShiftsRepository(db),
		Schedules: NewPostgresSchedulesRepository(db),
		Breaks:    NewPostgresBreaksRepository(db),
	}
}

// NewMemory in-memory repositories for DB_ENABLED=false and tests
func NewMemory() *Repositories {
	store := NewMemoryStore()
	return &Repositories{
		Persons:   store,
		Shifts:    store,
		Schedules: store,
		Breaks:    store,
	}
}
