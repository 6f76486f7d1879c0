package core

// Filter keeps the applications named by key or display name; no names keeps
// everything.
func Filter(original []InstalledApplication, filter []string) (filtered []InstalledApplication) {
	if len(filter) == 0 {
		return original
	}
	for _, application := range original {
		if contains(filter, application.Key) || contains(filter, application.DisplayName) {
			filtered = append(filtered, application)
		}
	}
	return filtered
}

func contains(haystack []string, needle string) bool {
	for _, straw := range haystack {
		if straw == needle {
			return true
		}
	}
	return false
}
