package adserver

// BidRequest is the subset of an OpenRTB 2.5 bid request the ad server
// understands. One request carries exactly one impression: the ad unit being
// loaded.
type BidRequest struct {
	ID   string       `json:"id"`
	Imp  []Impression `json:"imp"`
	User User         `json:"user"`
	Ext  RequestExt   `json:"ext"`
}

// Impression identifies the ad slot. TagID carries the ad unit id.
type Impression struct {
	ID    string `json:"id"`
	TagID string `json:"tagid"`
}

// User identifies the end user for frequency capping on the server side.
type User struct {
	ID string `json:"id"`
}

// RequestExt carries the publisher and, as key-values, the ad kind and
// surface so the server can target creatives per format.
type RequestExt struct {
	PublisherID int               `json:"publisher_id"`
	KV          map[string]string `json:"kv,omitempty"`
}

// BidResponse is the server's answer. An empty SeatBid with Nbr set is a
// no-fill.
type BidResponse struct {
	ID      string    `json:"id"`
	SeatBid []SeatBid `json:"seatbid"`
	Nbr     int       `json:"nbr,omitempty"`
}

// SeatBid groups bids; the server returns at most one.
type SeatBid struct {
	Bid []Bid `json:"bid"`
}

// Bid is the selected creative with its tracking URLs.
type Bid struct {
	ID       string  `json:"id"`
	ImpID    string  `json:"impid"`
	CrID     string  `json:"crid"`
	CID      string  `json:"cid"`
	Adm      string  `json:"adm"`
	Price    float64 `json:"price"`
	ImpURL   string  `json:"impurl,omitempty"`
	ClickURL string  `json:"clkurl,omitempty"`
	EventURL string  `json:"evturl,omitempty"`
}

// first returns the first bid in the response, if any.
func (r *BidResponse) first() (Bid, bool) {
	for _, sb := range r.SeatBid {
		if len(sb.Bid) > 0 {
			return sb.Bid[0], true
		}
	}
	return Bid{}, false
}
