package dealmatcher

import "fmt"

// AccessType is the deal's provider access-control mode, as emitted by the
// deal contract.
type AccessType int

const (
	AccessNone AccessType = iota
	AccessWhitelist
	AccessBlacklist
)

func (t AccessType) String() string {
	switch t {
	case AccessNone:
		return "none"
	case AccessWhitelist:
		return "whitelist"
	case AccessBlacklist:
		return "blacklist"
	default:
		return fmt.Sprintf("AccessType(%d)", int(t))
	}
}

// ProviderAccessLists splits a deal's access list into allow and deny lists
// according to the access type. Provider ids are normalized to lowercase.
func ProviderAccessLists(accessType AccessType, providers []string) (allow, deny []string, err error) {
	switch accessType {
	case AccessNone:
		return []string{}, []string{}, nil
	case AccessWhitelist:
		return normalizeIDs(providers), []string{}, nil
	case AccessBlacklist:
		return []string{}, normalizeIDs(providers), nil
	default:
		return nil, nil, fmt.Errorf("unknown providers access type: %d", int(accessType))
	}
}
