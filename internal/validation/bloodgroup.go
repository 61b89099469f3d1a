// Package validation содержит проверки входных значений на границе сервиса.
package validation

// BloodGroups перечисляет восемь канонических групп крови ABO/Rh.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// IsValidBloodGroup проверяет, что значение входит в каноническое перечисление групп крови.
func IsValidBloodGroup(group string) bool {
	for _, g := range BloodGroups {
		if g == group {
			return true
		}
	}
	return false
}

// IsValidUrgency проверяет допустимость значения срочности заявки.
func IsValidUrgency(urgency string) bool {
	switch urgency {
	case "urgent", "normal", "low":
		return true
	}
	return false
}
