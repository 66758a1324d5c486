package core

import "time"

// DetectionRecord tracks which satellites have seen one fire.
//
// Detected has one slot per satellite index; a zero time means that
// satellite has not seen the fire yet. FirstDetector is -1 until the first
// detection latches it and is never reassigned afterwards.
type DetectionRecord struct {
	FireID        int
	Detected      []time.Time
	FirstDetect   bool
	FirstDetector int

	// announced is set once the Detected notification has gone out.
	// FirstDetect itself stays set for the rest of the run.
	announced bool
}

func newDetectionRecord(fireID, satellites int) *DetectionRecord {
	return &DetectionRecord{
		FireID:        fireID,
		Detected:      make([]time.Time, satellites),
		FirstDetector: -1,
	}
}

// DetectedBy returns when satellite i first saw the fire.
func (r *DetectionRecord) DetectedBy(i int) (time.Time, bool) {
	if i < 0 || i >= len(r.Detected) || r.Detected[i].IsZero() {
		return time.Time{}, false
	}
	return r.Detected[i], true
}

// Announced reports whether the Detected notification has been emitted.
func (r *DetectionRecord) Announced() bool { return r.announced }

func (r *DetectionRecord) latch(i int, at time.Time) {
	r.Detected[i] = at
	if r.FirstDetector < 0 {
		r.FirstDetect = true
		r.FirstDetector = i
	}
}

func (r *DetectionRecord) clone() DetectionRecord {
	c := *r
	c.Detected = append([]time.Time(nil), r.Detected...)
	return c
}

// ReportRecord tracks which detecting satellites have downlinked one fire.
// A slot can only be filled once the same satellite's detection slot is set.
type ReportRecord struct {
	FireID          int
	Reported        []time.Time
	FirstReport     bool
	FirstReporter   int
	FirstReportedTo int
}

func newReportRecord(fireID, satellites int) *ReportRecord {
	return &ReportRecord{
		FireID:          fireID,
		Reported:        make([]time.Time, satellites),
		FirstReporter:   -1,
		FirstReportedTo: -1,
	}
}

// ReportedBy returns when satellite i first reported the fire.
func (r *ReportRecord) ReportedBy(i int) (time.Time, bool) {
	if i < 0 || i >= len(r.Reported) || r.Reported[i].IsZero() {
		return time.Time{}, false
	}
	return r.Reported[i], true
}

func (r *ReportRecord) latch(i int, at time.Time, groundID int) {
	r.Reported[i] = at
	if r.FirstReporter < 0 {
		r.FirstReport = true
		r.FirstReporter = i
		r.FirstReportedTo = groundID
	}
}

func (r *ReportRecord) clone() ReportRecord {
	c := *r
	c.Reported = append([]time.Time(nil), r.Reported...)
	return c
}
