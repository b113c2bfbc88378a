package models

import "strconv"

// GenericClassificationID is the legacy sentinel meaning "unclassified".
// It exists only at the storage edge; in-process code uses Classification.
const GenericClassificationID int64 = -1

// Classification is a tagged variant: either Generic (unclassified) or a
// named classification with an id. The zero value is not meaningful; use
// Generic() or Named().
type Classification struct {
	id   int64
	name string
}

// Generic returns the unclassified variant.
func Generic() Classification {
	return Classification{id: GenericClassificationID}
}

// Named returns a classification with the given id and display name.
func Named(id int64, name string) Classification {
	return Classification{id: id, name: name}
}

// ClassificationFromSentinel converts a stored (id, name) pair into the
// tagged form, folding the sentinel into Generic.
func ClassificationFromSentinel(id int64, name string) Classification {
	if id == GenericClassificationID {
		return Generic()
	}
	return Named(id, name)
}

func (c Classification) IsGeneric() bool { return c.id == GenericClassificationID }

// SentinelID returns the id as stored, including the generic sentinel.
func (c Classification) SentinelID() int64 { return c.id }

func (c Classification) Name() string {
	if c.IsGeneric() {
		return ""
	}
	return c.name
}

func (c Classification) String() string {
	if c.IsGeneric() {
		return "generic"
	}
	return c.name + "(" + strconv.FormatInt(c.id, 10) + ")"
}
