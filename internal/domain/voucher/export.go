package voucher

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
)

// EncodeCSV renders a batch as "Code,Credits" rows with a header line.
func EncodeCSV(vouchers []ledger.Voucher) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Code", "Credits"}); err != nil {
		return nil, err
	}
	for _, v := range vouchers {
		if err := w.Write([]string{v.Code, v.Credits.String()}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportKey(at time.Time) string {
	return fmt.Sprintf("vouchers/%s-%s.csv", at.UTC().Format("2006-01-02"), uuid.New().String())
}

// ExportFilename is the attachment name offered to the admin.
func ExportFilename(count int) string {
	return fmt.Sprintf("vouchers_%d.csv", count)
}
