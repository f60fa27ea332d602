package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Canonical file names inside a group directory.
const (
	SalesFile     = "sales.csv"
	SalesInfoFile = "sales_info.csv"
	ClientFile    = "client.csv"
)

// Group is a monitored file group resolved to its three input files.
type Group struct {
	ID        string
	Sales     string
	SalesInfo string
	Client    string
}

// ResolveGroup turns a monitored entry into input paths. An entry is either
// a directory holding sales.csv, sales_info.csv and client.csv, or three
// paths joined with os.PathListSeparator in that order.
func ResolveGroup(id string) (Group, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Group{}, fmt.Errorf("empty group")
	}

	if parts := filepath.SplitList(id); len(parts) > 1 {
		if len(parts) != 3 {
			return Group{}, fmt.Errorf("group %q: want 3 paths separated by %q, got %d", id, string(os.PathListSeparator), len(parts))
		}
		return Group{ID: id, Sales: parts[0], SalesInfo: parts[1], Client: parts[2]}, nil
	}

	fi, err := os.Stat(id)
	if err != nil {
		return Group{}, fmt.Errorf("group %q: %w", id, err)
	}
	if !fi.IsDir() {
		return Group{}, fmt.Errorf("group %q: not a directory", id)
	}
	return Group{
		ID:        id,
		Sales:     filepath.Join(id, SalesFile),
		SalesInfo: filepath.Join(id, SalesInfoFile),
		Client:    filepath.Join(id, ClientFile),
	}, nil
}

// JoinGroup builds the path-list form of a group entry.
func JoinGroup(sales, salesInfo, client string) string {
	sep := string(os.PathListSeparator)
	return sales + sep + salesInfo + sep + client
}
