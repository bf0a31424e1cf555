package inventory

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"stockroom-backend/internal/auth"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/ledger"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

// POST /api/inventory-batches/import-allocations
// Bulk initial-allocation import from an XLSX sheet with columns
// [batch number, store name, allocated, reserved]. Rows merge into the
// ledgers of existing batches; the import is idempotent, re-running the
// same file yields the same ledgers.
func ImportAllocationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "File could not be uploaded: "+err.Error())
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Only .xlsx files are accepted")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "File could not be opened: "+err.Error())
		}
		defer file.Close()

		excelFile, err := excelize.OpenReader(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Excel file could not be read: "+err.Error())
		}
		defer excelFile.Close()

		sheetList := excelFile.GetSheetList()
		if len(sheetList) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Excel file has no sheets")
		}

		rows, err := excelFile.GetRows(sheetList[0])
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Sheet could not be read: "+err.Error())
		}
		if len(rows) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Excel file is empty")
		}

		// First row is a header when the first cell is not a batch number.
		startIndex := 0
		if len(rows[0]) > 0 {
			firstCell := strings.ToUpper(strings.TrimSpace(rows[0][0]))
			if strings.Contains(firstCell, "BATCH") {
				startIndex = 1
			}
		}

		db := database.DB.WithContext(c.UserContext())

		var stores []models.Store
		if err := db.Find(&stores).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Stores could not be loaded")
		}
		storesByName := make(map[string]models.Store, len(stores))
		for _, s := range stores {
			storesByName[strings.ToLower(strings.TrimSpace(s.Name))] = s
		}

		actorKey := strconv.FormatUint(uint64(actor.ID), 10)
		importedCount := 0
		skippedRows := make([]string, 0)

		for i := startIndex; i < len(rows); i++ {
			row := rows[i]
			if len(row) < 3 {
				continue
			}

			batchNumber := strings.TrimSpace(row[0])
			storeName := strings.TrimSpace(row[1])
			if batchNumber == "" || storeName == "" {
				continue
			}

			allocated, err := strconv.ParseInt(strings.TrimSpace(row[2]), 10, 64)
			if err != nil {
				skippedRows = append(skippedRows, fmt.Sprintf("row %d: invalid allocated quantity", i+1))
				continue
			}
			var reserved int64
			if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
				reserved, err = strconv.ParseInt(strings.TrimSpace(row[3]), 10, 64)
				if err != nil {
					skippedRows = append(skippedRows, fmt.Sprintf("row %d: invalid reserved quantity", i+1))
					continue
				}
			}

			store, ok := storesByName[strings.ToLower(storeName)]
			if !ok {
				skippedRows = append(skippedRows, fmt.Sprintf("row %d: unknown store %q", i+1, storeName))
				continue
			}

			var batch models.InventoryBatch
			if err := db.Where("batch_number = ?", batchNumber).First(&batch).Error; err != nil {
				skippedRows = append(skippedRows, fmt.Sprintf("row %d: unknown batch %q", i+1, batchNumber))
				continue
			}

			m, err := ledger.Update(batch.Ledger(), ledger.Key(store.ID), allocated, reserved, actorKey)
			if err != nil {
				skippedRows = append(skippedRows, fmt.Sprintf("row %d: %v", i+1, err))
				continue
			}
			if !ledger.ValidateTotal(m, batch.NumberOfStock) {
				skippedRows = append(skippedRows, fmt.Sprintf("row %d: allocations exceed batch total", i+1))
				continue
			}

			batch.SetLedger(m)
			if err := db.Save(&batch).Error; err != nil {
				log.Printf("allocation import: batch %s could not be saved: %v", batchNumber, err)
				skippedRows = append(skippedRows, fmt.Sprintf("row %d: save failed", i+1))
				continue
			}
			importedCount++
		}

		return c.JSON(fiber.Map{
			"imported_count": importedCount,
			"skipped_rows":   skippedRows,
			"message":        fmt.Sprintf("%d allocation rows imported, %d skipped.", importedCount, len(skippedRows)),
		})
	}
}
