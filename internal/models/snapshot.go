package models

import "time"

// Snapshot JSON shapes. All wei-scale amounts are decimal strings and must be
// re-parsed as big integers by consumers, never through floating point. Pool
// ids appear as decimal-string JSON keys and are validated against the
// configured pools when a snapshot is read back.

// SnapshotMetadata describes the scan that produced a snapshot.
type SnapshotMetadata struct {
	CreatedAt            time.Time         `json:"createdAt"`
	StartBlock           uint64            `json:"startBlock"`
	EndBlock             uint64            `json:"endBlock"`
	TotalBlocks          uint64            `json:"totalBlocks"`
	EmergencyUnlockBlock uint64            `json:"emergencyUnlockBlock,omitempty"`
	Contract             string            `json:"contract"`
	ChunkSize            uint64            `json:"chunkSize"`
	PoolTokens           map[string]string `json:"poolTokens"` // poolId -> token address
}

// SnapshotPosition is one lock position in the detailed artifact.
type SnapshotPosition struct {
	LockId         string `json:"lockId"`
	PoolId         string `json:"poolId"`
	Amount         string `json:"amount"`
	LockPeriod     uint64 `json:"lockPeriod"`
	UnlockTime     uint64 `json:"unlockTime"`
	LastClaimBlock uint64 `json:"lastClaimBlock"`
	State          string `json:"state"`
	OriginBlock    uint64 `json:"originBlock"`
	Rewards        string `json:"rewards"`
}

// SnapshotTotalOwed is a user's aggregate entitlement in the detailed artifact.
type SnapshotTotalOwed struct {
	Tokens  map[string]string `json:"tokens"` // poolId -> amount
	Rewards string            `json:"rewards"`
}

// SnapshotUser is one user's full breakdown in the detailed artifact.
type SnapshotUser struct {
	Positions []SnapshotPosition `json:"positions"`
	TotalOwed SnapshotTotalOwed  `json:"totalOwed"`
}

// SnapshotSummaryStats are the aggregate counters shared by both artifacts.
type SnapshotSummaryStats struct {
	UsersWithOutstandingBalances int               `json:"usersWithOutstandingBalances"`
	TotalOutstandingPositions    int               `json:"totalOutstandingPositions"`
	TotalStaked                  map[string]string `json:"totalStaked"`
	TotalRewards                 string            `json:"totalRewards"`
}

// DetailedSnapshot is the full artifact: every position, per-user breakdown.
type DetailedSnapshot struct {
	Metadata     SnapshotMetadata        `json:"metadata"`
	Users        map[string]SnapshotUser `json:"users"`
	TotalStaked  map[string]string       `json:"totalStaked"`
	TotalRewards struct {
		Total string `json:"total"`
	} `json:"totalRewards"`
	Summary SnapshotSummaryStats `json:"summary"`
}

// SummaryUser is one user's aggregate entitlement in the summary artifact,
// the minimal input the distributor needs.
type SummaryUser struct {
	Tokens          map[string]string `json:"tokens"`
	TokensReadable  map[string]string `json:"tokensReadable"`
	Rewards         string            `json:"rewards"`
	RewardsReadable string            `json:"rewardsReadable"`
}

// SummarySnapshot is the compact artifact consumed by the distribution tools.
type SummarySnapshot struct {
	Metadata SnapshotMetadata       `json:"metadata"`
	Users    map[string]SummaryUser `json:"users"`
	Summary  SnapshotSummaryStats   `json:"summary"`
}
