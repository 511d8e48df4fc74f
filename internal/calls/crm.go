package calls

// DeriveCRMStatus maps a disposition to the CRM status recorded at the
// ADDING_TO_CRM step. The analyzer's suggestion is only consulted for
// dispositions without a fixed mapping.
func DeriveCRMStatus(d Disposition, suggested CRMStatus) CRMStatus {
	switch d {
	case DispositionInterested:
		return CRMStatusAdded
	case DispositionNoAnswer, DispositionBusy, DispositionWrongNumber:
		return CRMStatusNotCreated
	}
	if suggested.Valid() {
		return suggested
	}
	return CRMStatusPending
}
