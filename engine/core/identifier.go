package core

import (
	"github.com/google/uuid"
)

// ResourceID identifies a GPU-backed resource (buffer, descriptor set,
// pipeline) for logging and bookkeeping. The zero value is "no resource".
type ResourceID string

func NewResourceID() ResourceID {
	return ResourceID(uuid.NewString())
}

func (id ResourceID) IsValid() bool {
	return id != ""
}

func (id ResourceID) String() string {
	return string(id)
}
