package referrals

import "slices"

// Partner is a referral partner mentioned in an answer.
type Partner struct {
	Name string `json:"name"`
	// Company is only known for in-network partners.
	Company string `json:"company,omitempty"`
}

// Data is the structured part of an answer. Empty lists are valid.
type Data struct {
	NetworkPartners  []Partner `json:"networkPartners"`
	ExternalPartners []Partner `json:"externalPartners"`
}

func (d *Data) IsEmpty() bool {
	return d == nil || (len(d.NetworkPartners) == 0 && len(d.ExternalPartners) == 0)
}

func (d *Data) clone() *Data {
	if d == nil {
		return nil
	}
	return &Data{
		NetworkPartners:  append(make([]Partner, 0, len(d.NetworkPartners)), d.NetworkPartners...),
		ExternalPartners: append(make([]Partner, 0, len(d.ExternalPartners)), d.ExternalPartners...),
	}
}

// NetworkPartnerNames lists in-network partner names in order of appearance.
func (d *Data) NetworkPartnerNames() []string {
	if d == nil {
		return nil
	}
	return partnerNames(d.NetworkPartners)
}

// ExternalPartnerNames lists external partner names in order of appearance.
func (d *Data) ExternalPartnerNames() []string {
	if d == nil {
		return nil
	}
	return partnerNames(d.ExternalPartners)
}

func partnerNames(partners []Partner) []string {
	names := make([]string, 0, len(partners))
	for _, partner := range partners {
		names = append(names, partner.Name)
	}
	return slices.Clip(names)
}

// Origin tells whether an answer came from the model or the local fallback.
type Origin string

const (
	OriginModel    Origin = "model"
	OriginFallback Origin = "fallback"
)

// Result is the answer to one query.
type Result struct {
	Text   string `json:"text"`
	Data   *Data  `json:"data,omitempty"`
	Origin Origin `json:"origin"`
}

func (r Result) IsFallback() bool { return r.Origin == OriginFallback }

// Clone returns a deep copy safe to hand to another goroutine.
func (r Result) Clone() Result {
	r.Data = r.Data.clone()
	return r
}
