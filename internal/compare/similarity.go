package compare

import "strings"

// Similarity scores two strings in [0,1] using Levenshtein distance over
// the longer length. Identical strings score 1.
func Similarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Suggestion thresholds. Record types match loosely by label, users need
// a stronger signal, picklists sit in between.
const (
	recordTypeThreshold = 0.5
	userThreshold       = 0.7
	picklistThreshold   = 0.6
)

// SuggestRecordTypeMappings proposes source ID -> target ID pairs by
// developer-name match, exact name match, then name similarity.
func SuggestRecordTypeMappings(sourceTypes, targetTypes []RecordTypeInfo) map[string]string {
	suggestions := make(map[string]string)
	for _, source := range sourceTypes {
		var best *RecordTypeInfo
		bestScore := 0.0
		for i := range targetTypes {
			target := &targetTypes[i]
			if source.DeveloperName != "" && strings.EqualFold(source.DeveloperName, target.DeveloperName) {
				best = target
				bestScore = 1.0
				break
			}
			if strings.EqualFold(source.Name, target.Name) {
				best = target
				bestScore = 1.0
				continue
			}
			score := Similarity(strings.ToLower(source.Name), strings.ToLower(target.Name))
			if score > bestScore {
				bestScore = score
				best = target
			}
		}
		if best != nil && bestScore >= recordTypeThreshold {
			suggestions[source.ID] = best.ID
		}
	}
	return suggestions
}

// SuggestUserMappings proposes source user ID -> target user ID pairs by
// exact email, username base (the part before @), then name similarity.
func SuggestUserMappings(sourceUsers, targetUsers []UserInfo) map[string]string {
	suggestions := make(map[string]string)
	for _, source := range sourceUsers {
		var best *UserInfo
		bestScore := 0.0
		for i := range targetUsers {
			target := &targetUsers[i]
			if source.Email != "" && strings.EqualFold(source.Email, target.Email) {
				best = target
				bestScore = 1.0
				break
			}
			sourceBase := usernameBase(source.Username)
			targetBase := usernameBase(target.Username)
			if sourceBase != "" && strings.EqualFold(sourceBase, targetBase) {
				best = target
				bestScore = 0.9
				continue
			}
			score := Similarity(strings.ToLower(source.Name), strings.ToLower(target.Name))
			if score > bestScore {
				bestScore = score
				best = target
			}
		}
		if best != nil && bestScore >= userThreshold {
			suggestions[source.ID] = best.ID
		}
	}
	return suggestions
}

// SuggestPicklistMappings proposes source -> target value pairs, exact
// matches first, then similarity.
func SuggestPicklistMappings(sourceValues, targetValues []string) map[string]string {
	suggestions := make(map[string]string)
	for _, source := range sourceValues {
		best := ""
		bestScore := 0.0
		exact := false
		for _, target := range targetValues {
			if strings.EqualFold(source, target) {
				best = target
				exact = true
				break
			}
			score := Similarity(strings.ToLower(source), strings.ToLower(target))
			if score > bestScore {
				bestScore = score
				best = target
			}
		}
		if exact || (best != "" && bestScore >= picklistThreshold) {
			suggestions[source] = best
		}
	}
	return suggestions
}

func usernameBase(username string) string {
	at := strings.Index(username, "@")
	if at < 0 {
		return ""
	}
	return username[:at]
}
