package domain

// Context is the point-in-time snapshot the Fleet Store Adapter returns
// for a given date and shift: the full set of entities the Decision
// Engine and Optimizer reason over. Collections are mutually consistent
// as of the instant the snapshot was taken.
type Context struct {
	Date  ScheduleDate
	Shift Shift

	Trainsets     []Trainset
	Certificates  []FitnessCertificate
	JobCards      []JobCard
	CleaningSlots []CleaningSlot
	Branding      []BrandingRecord
	PriorSchedules []Schedule
}

// ScheduleDate is a calendar date with no time-of-day component,
// distinct from time.Time so callers can't accidentally compare across
// timezones. The Decision Engine converts one to midnight UTC when it
// stamps a decision's date.
type ScheduleDate struct {
	Year  int
	Month int
	Day   int
}

// CertificatesFor returns the certificates belonging to trainsetID.
func (c Context) CertificatesFor(trainsetID string) []FitnessCertificate {
	var out []FitnessCertificate
	for _, cert := range c.Certificates {
		if cert.TrainsetID == trainsetID {
			out = append(out, cert)
		}
	}
	return out
}

// JobCardsFor returns the open and closed work orders belonging to
// trainsetID.
func (c Context) JobCardsFor(trainsetID string) []JobCard {
	var out []JobCard
	for _, jc := range c.JobCards {
		if jc.TrainsetID == trainsetID {
			out = append(out, jc)
		}
	}
	return out
}

// BrandingFor returns the branding contracts belonging to trainsetID.
func (c Context) BrandingFor(trainsetID string) []BrandingRecord {
	var out []BrandingRecord
	for _, b := range c.Branding {
		if b.TrainsetID == trainsetID {
			out = append(out, b)
		}
	}
	return out
}

// ActiveTrainsets returns every trainset with IsActive set.
func (c Context) ActiveTrainsets() []Trainset {
	var out []Trainset
	for _, t := range c.Trainsets {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out
}
