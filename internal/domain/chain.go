package domain

// TxState is the confirmation state of a submitted transaction.
type TxState string

const (
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
)

// TxStatus is the result of a transaction status query.
type TxStatus struct {
	State  TxState
	Detail string
}

// BundleState is the lifecycle state of a relay bundle.
type BundleState string

const (
	BundlePending BundleState = "pending"
	BundleLanded  BundleState = "landed"
	BundleFailed  BundleState = "failed"
	BundleTimeout BundleState = "timeout"
)

// BundleStatus is the result of a bundle status query.
type BundleStatus struct {
	ID     string
	State  BundleState
	Slot   uint64
	Detail string
}

// Holding is a non-quote token balance held by the wallet.
type Holding struct {
	Mint     string
	Amount   uint64
	Decimals int32
}
