// Package unit defines the AudioUnit entity: one verse's recitation audio,
// addressed by a chapter (group) and a 1-based verse index within it.
package unit

import (
	"errors"
	"fmt"
	"strconv"
)

// KeyWidth is the zero-padded width of each key component.
// Keys stay collision-free only while both components are <= MaxID.
const KeyWidth = 3

// MaxID is the largest group ID or unit index representable in KeyWidth digits.
const MaxID = 999

// Static errors for key construction and parsing.
var (
	// ErrGroupOutOfRange is returned when a group ID is outside 1..MaxID.
	ErrGroupOutOfRange = errors.New("unit: group id out of range")
	// ErrIndexOutOfRange is returned when a unit index is outside 1..MaxID.
	ErrIndexOutOfRange = errors.New("unit: unit index out of range")
	// ErrMalformedKey is returned when a key is not 2*KeyWidth decimal digits.
	ErrMalformedKey = errors.New("unit: malformed key")
)

// AudioUnit is a single named unit of recitation audio.
type AudioUnit struct {
	Key       string
	GroupID   int
	UnitIndex int
	Data      []byte
}

// New builds an AudioUnit, deriving its key from groupID and unitIndex.
func New(groupID, unitIndex int, data []byte) (AudioUnit, error) {
	key, err := Key(groupID, unitIndex)
	if err != nil {
		return AudioUnit{}, err
	}
	return AudioUnit{
		Key:       key,
		GroupID:   groupID,
		UnitIndex: unitIndex,
		Data:      data,
	}, nil
}

// Key returns the globally unique key for a unit: both components
// zero-padded to KeyWidth digits and concatenated ("001007").
func Key(groupID, unitIndex int) (string, error) {
	if groupID < 1 || groupID > MaxID {
		return "", fmt.Errorf("%w: %d", ErrGroupOutOfRange, groupID)
	}
	if unitIndex < 1 || unitIndex > MaxID {
		return "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, unitIndex)
	}
	return GroupPrefix(groupID) + pad(unitIndex), nil
}

// MustKey is like Key but panics on out-of-range input.
// Intended for constants and tests.
func MustKey(groupID, unitIndex int) string {
	key, err := Key(groupID, unitIndex)
	if err != nil {
		panic(err)
	}
	return key
}

// GroupPrefix returns the key prefix shared by every unit of a group.
func GroupPrefix(groupID int) string {
	return pad(groupID)
}

// ParseKey splits a key back into its group ID and unit index.
func ParseKey(key string) (groupID, unitIndex int, err error) {
	if len(key) != 2*KeyWidth {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	groupID, err = strconv.Atoi(key[:KeyWidth])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	unitIndex, err = strconv.Atoi(key[KeyWidth:])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	if groupID < 1 || unitIndex < 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return groupID, unitIndex, nil
}

func pad(n int) string {
	return fmt.Sprintf("%0*d", KeyWidth, n)
}
