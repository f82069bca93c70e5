package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
)

// Granularity is the bucket width of a trend series.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity matches case-insensitively.
func ParseGranularity(raw string) (Granularity, bool) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(raw))); g {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth:
		return g, true
	}
	return "", false
}

// TrendBucket is one slot of a trend series.
type TrendBucket struct {
	Label string
	Start time.Time
	Total domain.Amount
}

// CategoryLabel names a category breakdown slice.
type CategoryLabel string

const (
	CategorySilver CategoryLabel = "Silver"
	CategoryGold   CategoryLabel = "Gold"
	CategoryPlatin CategoryLabel = "Platin"
	CategoryOthers CategoryLabel = "Others"
)

// CategoryLabels is the display order of the breakdown.
var CategoryLabels = []CategoryLabel{CategorySilver, CategoryGold, CategoryPlatin, CategoryOthers}

// CategoryTotals always holds every label in CategoryLabels.
type CategoryTotals map[CategoryLabel]domain.Amount

// CustomerRollup groups recent orders by customer.
type CustomerRollup struct {
	Key           string
	Name          string
	Phone         string
	Total         domain.Amount
	Orders        int
	LastOrderAt   time.Time
	Status        string
	LatestOrderID string
}

const (
	RollupCompleted = "completed"
	RollupPending   = "pending"

	maxRollupGroups = 5
)

// patterns are matched in order; the first hit wins.
var categoryPatterns = []struct {
	needle string
	label  CategoryLabel
}{
	{"silver", CategorySilver},
	{"gold", CategoryGold},
	{"platin", CategoryPlatin},
}

var tierLabels = map[domain.Tier]CategoryLabel{
	domain.TierSilver: CategorySilver,
	domain.TierGold:   CategoryGold,
	domain.TierPlatin: CategoryPlatin,
}

// TotalsForRange sums order totals created within [start, end].
func TotalsForRange(orders []Order, start, end time.Time) domain.Amount {
	window := domain.TimeRange{From: start, To: end}
	var total domain.Amount
	for _, order := range orders {
		if window.Contains(order.CreatedAt) {
			total += order.Total
		}
	}
	return total
}

// Variance returns the percentage change from previous to current, or nil when previous is
// zero.
func Variance(current, previous domain.Amount) *float64 {
	if previous == 0 {
		return nil
	}
	v := float64(current-previous) / float64(previous) * 100
	return &v
}

// Trend buckets orders into window consecutive slots ending with the slot that contains now.
// Every slot is present even when empty.
func Trend(orders []Order, granularity Granularity, window int, now time.Time, loc *time.Location) []TrendBucket {
	if window <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	last := bucketStart(granularity, now)
	buckets := make([]TrendBucket, window)
	for i := range buckets {
		start := shiftBucket(granularity, last, i-(window-1))
		buckets[i] = TrendBucket{Label: bucketLabel(granularity, start), Start: start}
	}

	first := buckets[0].Start
	for _, order := range orders {
		at := order.CreatedAt.In(loc)
		if at.Before(first) || at.After(now) {
			continue
		}
		idx := sort.Search(len(buckets), func(i int) bool { return buckets[i].Start.After(at) }) - 1
		if idx >= 0 {
			buckets[idx].Total += order.Total
		}
	}
	return buckets
}

// HourOfDayProfile sums order totals by local hour of creation.
func HourOfDayProfile(orders []Order, loc *time.Location) [24]domain.Amount {
	if loc == nil {
		loc = time.UTC
	}
	var profile [24]domain.Amount
	for _, order := range orders {
		profile[order.CreatedAt.In(loc).Hour()] += order.Total
	}
	return profile
}

// CategoryBreakdown partitions line-item prices of orders created in [start, end].
func CategoryBreakdown(orders []Order, start, end time.Time) CategoryTotals {
	totals := make(CategoryTotals, len(CategoryLabels))
	for _, label := range CategoryLabels {
		totals[label] = 0
	}
	window := domain.TimeRange{From: start, To: end}
	for _, order := range orders {
		if !window.Contains(order.CreatedAt) {
			continue
		}
		for _, item := range order.Items {
			totals[ClassifyLineItem(item)] += item.Price
		}
	}
	return totals
}

// ClassifyLineItem uses the structured tier when set, else the name heuristic.
func ClassifyLineItem(item LineItem) CategoryLabel {
	if label, ok := tierLabels[item.Tier]; ok {
		return label
	}
	name := strings.ToLower(item.Name)
	for _, p := range categoryPatterns {
		if strings.Contains(name, p.needle) {
			return p.label
		}
	}
	return CategoryOthers
}

// RecentCustomerRollup groups the given recent orders by name and phone and returns at most
// five groups, most recent first. Customers with older orders outside recent are
// undercounted.
func RecentCustomerRollup(recent []Order) []CustomerRollup {
	groups := make(map[string]*CustomerRollup)
	order := make([]string, 0)
	for _, o := range recent {
		key := rollupKey(o)
		group, ok := groups[key]
		if !ok {
			group = &CustomerRollup{Key: key, Name: strings.TrimSpace(o.CustomerName), Phone: strings.TrimSpace(o.CustomerPhone), Status: RollupPending}
			groups[key] = group
			order = append(order, key)
		}
		group.Total += o.Total
		group.Orders++
		if o.CreatedAt.After(group.LastOrderAt) {
			group.LastOrderAt = o.CreatedAt
			group.LatestOrderID = o.ID
		}
		if o.IsPaid() {
			group.Status = RollupCompleted
		}
	}

	out := make([]CustomerRollup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastOrderAt.After(out[j].LastOrderAt) })
	if len(out) > maxRollupGroups {
		out = out[:maxRollupGroups]
	}
	return out
}

func rollupKey(o Order) string {
	name := strings.TrimSpace(o.CustomerName)
	if phone := strings.TrimSpace(o.CustomerPhone); phone != "" {
		return name + phone
	}
	return name
}

func bucketStart(granularity Granularity, t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch granularity {
	case GranularityHour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case GranularityWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case GranularityMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

func shiftBucket(granularity Granularity, start time.Time, n int) time.Time {
	y, m, d := start.Date()
	loc := start.Location()
	switch granularity {
	case GranularityHour:
		return time.Date(y, m, d, start.Hour()+n, 0, 0, 0, loc)
	case GranularityWeek:
		return time.Date(y, m, d+7*n, 0, 0, 0, 0, loc)
	case GranularityMonth:
		return time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d+n, 0, 0, 0, 0, loc)
	}
}

func bucketLabel(granularity Granularity, start time.Time) string {
	switch granularity {
	case GranularityHour:
		return start.Format("15:04")
	case GranularityWeek:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case GranularityMonth:
		return start.Format("2006-01")
	default:
		return start.Format("2006-01-02")
	}
}
