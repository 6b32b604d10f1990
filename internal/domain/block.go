package domain

// BlockSummary is the condensed view of a mined block streamed to the UI.
type BlockSummary struct {
	Number   uint64 `json:"number"`
	Hash     string `json:"hash"`
	Time     uint64 `json:"time"`
	GasUsed  uint64 `json:"gasUsed"`
	GasLimit uint64 `json:"gasLimit"`
	Miner    string `json:"miner"`
	TxCount  int    `json:"transactions"`
}

// BlockDetail is a block summary plus its transaction hashes, returned
// by the single-block query endpoint.
type BlockDetail struct {
	BlockSummary
	Transactions []string `json:"transactionHashes"`
}

// BlockEvent pairs a mined block with the chain that produced it on the
// orchestrator's block feed.
type BlockEvent struct {
	ChainID string       `json:"chainId"`
	Block   BlockSummary `json:"block"`
}
