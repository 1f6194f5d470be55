package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	AccountIDPrefix  = "ACC"
	TicketIDPrefix   = "TKT"
	PurchaseIDPrefix = "PUR"
)

func FormatID(prefix string, seq int) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

// ParseSeq extracts the sequence number from an id such as "ACC-0012".
func ParseSeq(prefix, id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
