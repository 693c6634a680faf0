package model

type Business struct {
	ID     string
	Name   string
	Active bool
}

type Provider struct {
	ID         string
	BusinessID string
	Name       string
	// Lunch break in minutes since midnight. Both set or both nil.
	LunchStart *int
	LunchEnd   *int
}

func (p Provider) HasLunch() bool {
	return p.LunchStart != nil && p.LunchEnd != nil
}

// BlockScope is the id blocks are recorded against for this provider.
func (p Provider) BlockScope() string {
	return BlockScope(p.BusinessID, p.ID)
}

func BlockScope(businessID, providerID string) string {
	if businessID != "" {
		return businessID
	}
	return providerID
}

type Service struct {
	ID              string
	BusinessID      string
	ProviderID      string
	Title           string
	Description     string
	PriceMinor      int64
	DurationMinutes int
	Active          bool
	// BusinessActive mirrors the owning business flag; true when the service has no business.
	BusinessActive bool
}

type AvailabilityWindow struct {
	ProviderID  string
	Weekday     Weekday
	StartMinute int
	EndMinute   int
	Enabled     bool
}
