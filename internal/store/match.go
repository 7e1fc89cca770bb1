package store

import "strings"

// Identity is what a live device currently reports about itself.
type Identity struct {
	Name    string
	WPID    string
	Serial  string
	ModelID string
	UnitID  string
	Online  bool
}

// isZeroID reports whether a hardware identifier is the all-zero value some
// devices report instead of a real one.
func isZeroID(s string) bool {
	return s != "" && strings.Trim(s, "0") == ""
}

// discriminators returns the model and unit identifiers used to match and
// record the device. Zeroed hardware IDs are replaced by the device name and
// serial number, which is the best available substitute.
func (id Identity) discriminators() (modelID, unitID string) {
	modelID, unitID = id.ModelID, id.UnitID
	zeroModel := isZeroID(id.ModelID)
	if zeroModel {
		modelID = id.Name
	}
	if unitID != "" && (zeroModel || isZeroID(unitID)) {
		unitID = id.Serial
	}
	return modelID, unitID
}

func matches(r *Record, wpid, serial, modelID, unitID string) bool {
	if wpid != "" && serial != "" && wpid == r.wpid && serial == r.serial {
		return true
	}
	return modelID != "" && unitID != "" && modelID == r.modelID && unitID == r.unitID
}

// find returns the first record, in document order, that represents the
// device. Callers hold the owner's lock.
func find(id Identity, records []*Record) (*Record, bool) {
	modelID, unitID := id.discriminators()
	for _, r := range records {
		if matches(r, id.WPID, id.Serial, modelID, unitID) {
			return r, true
		}
	}
	return nil, false
}
