// Copyright 2026 The Reins Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package statetool provides built-in tools that manage structured
// session state, such as a stock watchlist the agent maintains across
// conversations.
//
// State differs from history (what was said) and memory (user
// preferences): it is data the agent actively manages through tools.
// Watchlist tools read and write the "watchlist" state key via the
// tool context, so any state backend works.
package statetool

import (
	"fmt"
	"slices"
	"strings"

	"github.com/reins-ai/reins/pkg/tool"
	"github.com/reins-ai/reins/pkg/tool/functiontool"
)

// WatchlistKey is the session state key holding the ticker list.
const WatchlistKey = "watchlist"

type tickerArgs struct {
	Ticker string `json:"ticker" jsonschema:"required,description=Stock ticker symbol (e.g. NVDA, AAPL)"`
}

type viewArgs struct{}

// NewWatchlistTools returns the add, remove, and view watchlist tools.
func NewWatchlistTools() ([]tool.CallableTool, error) {
	add, err := NewAddToWatchlist()
	if err != nil {
		return nil, err
	}
	remove, err := NewRemoveFromWatchlist()
	if err != nil {
		return nil, err
	}
	view, err := NewViewWatchlist()
	if err != nil {
		return nil, err
	}
	return []tool.CallableTool{add, remove, view}, nil
}

// NewAddToWatchlist returns a tool that adds a ticker to the
// watchlist. Tickers are upcased and trimmed; duplicates are reported,
// not added twice.
func NewAddToWatchlist() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "add_to_watchlist",
			Description: "Add a stock ticker to the watchlist",
		},
		func(ctx tool.Context, args tickerArgs) (map[string]any, error) {
			ticker, err := normalizeTicker(args.Ticker)
			if err != nil {
				return nil, err
			}

			list := Watchlist(ctx.State())
			if slices.Contains(list, ticker) {
				return response(fmt.Sprintf("%s is already on your watchlist", ticker), list), nil
			}

			list = append(list, ticker)
			if err := ctx.State().Set(WatchlistKey, list); err != nil {
				return nil, fmt.Errorf("failed to update watchlist: %w", err)
			}
			msg := fmt.Sprintf("Added %s to watchlist. Current watchlist: %s", ticker, strings.Join(list, ", "))
			return response(msg, list), nil
		},
	)
}

// NewRemoveFromWatchlist returns a tool that removes a ticker from the
// watchlist.
func NewRemoveFromWatchlist() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "remove_from_watchlist",
			Description: "Remove a stock ticker from the watchlist",
		},
		func(ctx tool.Context, args tickerArgs) (map[string]any, error) {
			ticker, err := normalizeTicker(args.Ticker)
			if err != nil {
				return nil, err
			}

			list := Watchlist(ctx.State())
			i := slices.Index(list, ticker)
			if i < 0 {
				return response(fmt.Sprintf("%s is not on your watchlist", ticker), list), nil
			}

			list = slices.Delete(list, i, i+1)
			if err := ctx.State().Set(WatchlistKey, list); err != nil {
				return nil, fmt.Errorf("failed to update watchlist: %w", err)
			}

			if len(list) > 0 {
				msg := fmt.Sprintf("Removed %s. Remaining watchlist: %s", ticker, strings.Join(list, ", "))
				return response(msg, list), nil
			}
			return response(fmt.Sprintf("Removed %s. Watchlist is now empty.", ticker), list), nil
		},
	)
}

// NewViewWatchlist returns a tool that reports the current watchlist.
func NewViewWatchlist() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "view_watchlist",
			Description: "Show the stocks currently on the watchlist",
		},
		func(ctx tool.Context, _ viewArgs) (map[string]any, error) {
			list := Watchlist(ctx.State())
			if len(list) == 0 {
				return response("Your watchlist is empty.", list), nil
			}
			return response(fmt.Sprintf("Your watchlist: %s", strings.Join(list, ", ")), list), nil
		},
	)
}

// Watchlist reads the ticker list from state. Persisted lists come
// back from JSON as []any, so both slice shapes are accepted.
func Watchlist(state tool.State) []string {
	val, err := state.Get(WatchlistKey)
	if err != nil {
		return nil
	}
	switch v := val.(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" {
		return "", fmt.Errorf("ticker is required")
	}
	return ticker, nil
}

func response(message string, list []string) map[string]any {
	return map[string]any{
		"message":    message,
		WatchlistKey: list,
	}
}
