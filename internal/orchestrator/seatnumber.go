package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/coursereg/registrar/internal/domain"
)

var seatNumberPattern = regexp.MustCompile(`^[A-Za-z]+[0-9]+$`)

// parseSeatNumber splits a seat label like "A1" into its zero-based row
// index and 1-based column, per spec.md §6's case-insensitive
// ^[A-Z]+[0-9]+$ format.
func parseSeatNumber(seatNumber string) (row, column int, err error) {
	if !seatNumberPattern.MatchString(seatNumber) {
		return 0, 0, domain.InputInvalid("malformed seat number: " + seatNumber)
	}
	i := 0
	for i < len(seatNumber) && isLetter(seatNumber[i]) {
		i++
	}
	letters := strings.ToUpper(seatNumber[:i])
	digits := seatNumber[i:]

	col, convErr := strconv.Atoi(digits)
	if convErr != nil {
		return 0, 0, domain.InputInvalid("malformed seat number: " + seatNumber)
	}

	row = 0
	for _, r := range letters {
		row = row*26 + int(r-'A'+1)
	}
	row -= 1 // zero-base the row index

	return row, col, nil
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func seatLabel(row, column int) string {
	return fmt.Sprintf("%s%d", string(rune('A'+row)), column)
}

// lexicographicallyFirstFree returns the first available seat in canonical
// order (row A.., column 1..), or "" if none.
func lexicographicallyFirstFree(rows, seatsPerRow int, occupied map[string]struct{}) string {
	for r := 0; r < rows; r++ {
		for c := 1; c <= seatsPerRow; c++ {
			label := seatLabel(r, c)
			if _, taken := occupied[label]; !taken {
				return label
			}
		}
	}
	return ""
}
