package render

import (
	"fmt"
	"io"
	"time"

	"github.com/localchain-dev/localchain/internal/domain"
)

// LogLine prints one captured node output line.
func LogLine(out io.Writer, line domain.LogLine) {
	ts := faintStyle.Sprint(line.Time.Format(time.TimeOnly))
	if line.Source == domain.LogStderr {
		fmt.Fprintf(out, "%s %s %s\n", ts, crashedStyle.Sprint("err"), line.Text)
		return
	}
	fmt.Fprintf(out, "%s %s\n", ts, line.Text)
}

// BlockLine prints one mined block summary.
func BlockLine(out io.Writer, b domain.BlockSummary) {
	fmt.Fprintf(out, "%s block %s  txs=%d  gas=%d/%d  hash=%s\n",
		faintStyle.Sprint(time.Unix(int64(b.Time), 0).Format(time.TimeOnly)),
		labelStyle.Sprintf("#%d", b.Number),
		b.TxCount, b.GasUsed, b.GasLimit, shortHash(b.Hash))
}

// BlockDetail prints a block with its transaction hashes.
func BlockDetail(out io.Writer, d domain.BlockDetail) {
	labelStyle.Fprintf(out, "Block #%d\n", d.Number)
	fmt.Fprintf(out, "  Hash:     %s\n", d.Hash)
	fmt.Fprintf(out, "  Time:     %s\n", time.Unix(int64(d.Time), 0).Format(time.RFC3339))
	fmt.Fprintf(out, "  Gas:      %d / %d\n", d.GasUsed, d.GasLimit)
	fmt.Fprintf(out, "  Miner:    %s\n", d.Miner)
	fmt.Fprintf(out, "  Txs:      %d\n", d.TxCount)
	for _, h := range d.Transactions {
		fmt.Fprintf(out, "    %s\n", h)
	}
}

func shortHash(h string) string {
	if len(h) > 14 {
		return h[:10] + "…" + h[len(h)-4:]
	}
	return h
}
