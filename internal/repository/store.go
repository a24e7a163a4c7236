package repository

import "github.com/hray3182/nudge/internal/database"

// Store bundles the repositories behind the scheduler and completion
// storage interfaces and the preference provider.
type Store struct {
	*SourceRepository
	*TriggerRepository
	*CompletionRepository
	*PreferencesRepository
}

func NewStore(db database.DBTX, defaultLead int) *Store {
	return &Store{
		SourceRepository:      NewSourceRepository(db),
		TriggerRepository:     NewTriggerRepository(db),
		CompletionRepository:  NewCompletionRepository(db),
		PreferencesRepository: NewPreferencesRepository(db, defaultLead),
	}
}
