/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package distribute

import (
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"strings"

	"stake-recovery-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LoadRecipientsCSV reads an (Address, Quantity) export. The header row must
// name an Address and a Quantity column; Address_Nametag is optional.
// Quantities are human-decimal strings, tolerant of surrounding quotes and
// thousands commas, and are scaled to wei at the given token decimals. A row
// that fails to parse is logged and skipped; it never aborts the load.
func LoadRecipientsCSV(path string, decimals int32) ([]models.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open CSV %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to parse CSV %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV %s is empty", path)
	}

	addrCol, qtyCol, tagCol := -1, -1, -1
	for i, name := range records[0] {
		switch strings.TrimSpace(name) {
		case "Address":
			addrCol = i
		case "Quantity":
			qtyCol = i
		case "Address_Nametag":
			tagCol = i
		}
	}
	if addrCol < 0 || qtyCol < 0 {
		return nil, fmt.Errorf("CSV %s header must include Address and Quantity columns", path)
	}

	recipients := make([]models.Recipient, 0, len(records)-1)
	for line, row := range records[1:] {
		if len(row) <= addrCol || len(row) <= qtyCol {
			zap.L().Warn("Skipping short CSV row", zap.Int("line", line+2))
			continue
		}

		addrStr := strings.TrimSpace(row[addrCol])
		if !common.IsHexAddress(addrStr) {
			zap.L().Warn("Skipping CSV row with invalid address",
				zap.Int("line", line+2),
				zap.String("address", addrStr))
			continue
		}

		amount, err := parseQuantity(row[qtyCol], decimals)
		if err != nil {
			zap.L().Warn("Skipping CSV row with invalid quantity",
				zap.Int("line", line+2),
				zap.String("quantity", row[qtyCol]),
				zap.Error(err))
			continue
		}

		r := models.Recipient{
			Address: common.HexToAddress(addrStr),
			Amount:  amount,
		}
		if tagCol >= 0 && len(row) > tagCol {
			r.Nametag = strings.TrimSpace(row[tagCol])
		}
		recipients = append(recipients, r)
	}

	zap.L().Info("Loaded recipients from CSV",
		zap.String("path", path),
		zap.Int("recipients", len(recipients)))
	return recipients, nil
}

// parseQuantity converts a human-decimal quantity to wei-scale. The decimal
// library keeps the value exact; the result is truncated to an integer.
func parseQuantity(raw string, decimals int32) (*big.Int, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.Trim(cleaned, `"'`)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return nil, fmt.Errorf("empty quantity")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal: %w", err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative quantity")
	}
	return d.Shift(decimals).BigInt(), nil
}
