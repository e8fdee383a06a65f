package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SUICoinType is the native fee coin.
const SUICoinType = "0x2::sui::SUI"

// Uint64 decodes both JSON numbers and decimal strings; the node
// serializes large integers as strings.
type Uint64 uint64

func (u *Uint64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %q: %w", s, err)
	}
	*u = Uint64(v)
	return nil
}

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(u), 10))), nil
}

// OwnerKind tags the ownership variants an object can have.
type OwnerKind string

const (
	OwnerAddress          OwnerKind = "AddressOwner"
	OwnerObject           OwnerKind = "ObjectOwner"
	OwnerShared           OwnerKind = "Shared"
	OwnerImmutable        OwnerKind = "Immutable"
	OwnerConsensusAddress OwnerKind = "ConsensusAddressOwner"
)

// Owner is the recorded owner of an object.
type Owner struct {
	Kind                 OwnerKind
	Address              string
	InitialSharedVersion uint64
}

// AccountAddress returns the owning account when the object is held by one.
func (o *Owner) AccountAddress() (string, bool) {
	if o == nil {
		return "", false
	}
	switch o.Kind {
	case OwnerAddress, OwnerConsensusAddress:
		return o.Address, o.Address != ""
	}
	return "", false
}

func (o *Owner) String() string {
	if o == nil {
		return ""
	}
	switch o.Kind {
	case OwnerShared:
		return fmt.Sprintf("Shared(%d)", o.InitialSharedVersion)
	case OwnerImmutable:
		return string(OwnerImmutable)
	}
	return o.Address
}

func (o *Owner) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != string(OwnerImmutable) {
			return fmt.Errorf("unknown owner %q", s)
		}
		*o = Owner{Kind: OwnerImmutable}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode owner: %w", err)
	}
	switch {
	case raw[string(OwnerAddress)] != nil:
		var addr string
		if err := json.Unmarshal(raw[string(OwnerAddress)], &addr); err != nil {
			return err
		}
		*o = Owner{Kind: OwnerAddress, Address: addr}
	case raw[string(OwnerObject)] != nil:
		var addr string
		if err := json.Unmarshal(raw[string(OwnerObject)], &addr); err != nil {
			return err
		}
		*o = Owner{Kind: OwnerObject, Address: addr}
	case raw[string(OwnerShared)] != nil:
		var shared struct {
			InitialSharedVersion Uint64 `json:"initial_shared_version"`
		}
		if err := json.Unmarshal(raw[string(OwnerShared)], &shared); err != nil {
			return err
		}
		*o = Owner{Kind: OwnerShared, InitialSharedVersion: uint64(shared.InitialSharedVersion)}
	case raw[string(OwnerConsensusAddress)] != nil:
		var consensus struct {
			Owner string `json:"owner"`
		}
		if err := json.Unmarshal(raw[string(OwnerConsensusAddress)], &consensus); err != nil {
			return err
		}
		*o = Owner{Kind: OwnerConsensusAddress, Address: consensus.Owner}
	default:
		return fmt.Errorf("unknown owner shape %s", string(b))
	}
	return nil
}

func (o Owner) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OwnerImmutable:
		return json.Marshal(string(OwnerImmutable))
	case OwnerShared:
		return json.Marshal(map[string]any{
			string(OwnerShared): map[string]Uint64{"initial_shared_version": Uint64(o.InitialSharedVersion)},
		})
	case OwnerConsensusAddress:
		return json.Marshal(map[string]any{
			string(OwnerConsensusAddress): map[string]string{"owner": o.Address},
		})
	}
	return json.Marshal(map[string]string{string(o.Kind): o.Address})
}

// AddressOwnedBy is shorthand for an account-owned Owner.
func AddressOwnedBy(addr string) *Owner {
	return &Owner{Kind: OwnerAddress, Address: addr}
}

type ObjectDataOptions struct {
	ShowType    bool `json:"showType"`
	ShowOwner   bool `json:"showOwner"`
	ShowContent bool `json:"showContent"`
}

type ObjectData struct {
	ObjectID string          `json:"objectId"`
	Version  Uint64          `json:"version"`
	Digest   string          `json:"digest"`
	Type     string          `json:"type,omitempty"`
	Owner    *Owner          `json:"owner,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}

type ObjectError struct {
	Code     string `json:"code"`
	ObjectID string `json:"object_id,omitempty"`
}

// ObjectResponse carries either Data or Error.
type ObjectResponse struct {
	Data  *ObjectData  `json:"data,omitempty"`
	Error *ObjectError `json:"error,omitempty"`
}

// ObjectChange is one entry of a transaction's object-change report.
type ObjectChange struct {
	Type       string `json:"type"`
	Sender     string `json:"sender,omitempty"`
	Owner      *Owner `json:"owner,omitempty"`
	Recipient  *Owner `json:"recipient,omitempty"`
	ObjectType string `json:"objectType,omitempty"`
	ObjectID   string `json:"objectId,omitempty"`
	Version    Uint64 `json:"version,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

const (
	ChangeCreated     = "created"
	ChangeMutated     = "mutated"
	ChangeTransferred = "transferred"
)

type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const StatusSuccess = "success"

type GasCostSummary struct {
	ComputationCost Uint64 `json:"computationCost"`
	StorageCost     Uint64 `json:"storageCost"`
	StorageRebate   Uint64 `json:"storageRebate"`
}

type TransactionEffects struct {
	Status  ExecutionStatus `json:"status"`
	GasUsed GasCostSummary  `json:"gasUsed"`
}

type TransactionResponseOptions struct {
	ShowInput         bool `json:"showInput"`
	ShowEffects       bool `json:"showEffects"`
	ShowEvents        bool `json:"showEvents"`
	ShowObjectChanges bool `json:"showObjectChanges"`
}

// TransactionBlockResponse is the node's answer to a submission. Raw keeps
// the undecoded body for callers that need fields not modelled here.
type TransactionBlockResponse struct {
	Digest        string              `json:"digest"`
	Effects       *TransactionEffects `json:"effects,omitempty"`
	ObjectChanges []ObjectChange      `json:"objectChanges,omitempty"`
	Errors        []string            `json:"errors,omitempty"`
	Raw           json.RawMessage     `json:"-"`
}

type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    Uint64 `json:"totalBalance"`
}

type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      Uint64 `json:"version"`
	Digest       string `json:"digest"`
	Balance      Uint64 `json:"balance"`
}

type CoinPage struct {
	Data        []Coin  `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type DynamicFieldName struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type DynamicFieldInfo struct {
	Name       DynamicFieldName `json:"name"`
	Type       string           `json:"type"`
	ObjectType string           `json:"objectType"`
	ObjectID   string           `json:"objectId"`
	Version    Uint64           `json:"version"`
	Digest     string           `json:"digest"`
}

type DynamicFieldPage struct {
	Data        []DynamicFieldInfo `json:"data"`
	NextCursor  *string            `json:"nextCursor"`
	HasNextPage bool               `json:"hasNextPage"`
}
