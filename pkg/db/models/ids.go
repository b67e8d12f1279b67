package models

import "github.com/google/uuid"

// ensureID assigns a random id before insert so rows can be created on
// drivers without gen_random_uuid().
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
