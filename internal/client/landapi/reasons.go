package landapi

type Reason string

func (r Reason) ReasonCode() string {
	return string(r)
}

const (
	ReasonCoordMismatch Reason = "chunk_coord_mismatch"
	ReasonEmptyToken    Reason = "empty_token"
)
