package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
)

// vinPattern описывает VIN: 17 символов без I, O и Q.
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// ErrInvalidScan возвращается, если скан не соответствует входному контракту.
var ErrInvalidScan = errors.New("invalid scan input")

// ScanInput данные одного сканирования OBD, как их прислало устройство.
type ScanInput struct {
	VIN     string  `json:"vin"`               // идентификатор автомобиля
	Year    *int    `json:"year,omitempty"`    // год выпуска
	Make    *string `json:"make,omitempty"`    // марка
	Model   *string `json:"model,omitempty"`   // модель
	Mileage *int    `json:"mileage,omitempty"` // пробег

	MilOn    bool `json:"milOn"`    // горит ли "check engine"
	DTCCount int  `json:"dtcCount"` // сколько кодов сообщил блок

	DistanceSinceCleared *int `json:"distanceSinceCleared,omitempty"` // пробег с последнего сброса кодов
	WarmupsSinceCleared  *int `json:"warmupsSinceCleared,omitempty"`  // прогревы с последнего сброса кодов

	StoredDTCCodes    []string `json:"storedDtcCodes"`
	PendingDTCCodes   []string `json:"pendingDtcCodes"`
	PermanentDTCCodes []string `json:"permanentDtcCodes"`
}

// ParseScanInput разбирает JSON со сканом и проверяет его.
func ParseScanInput(data []byte) (*ScanInput, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var scan ScanInput
	if err := dec.Decode(&scan); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidScan, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after scan object", ErrInvalidScan)
	}

	if err := scan.Validate(); err != nil {
		return nil, err
	}
	return &scan, nil
}

// Validate проверяет обязательные поля и ограничения скана.
func (s *ScanInput) Validate() error {
	var problems []string

	if !vinPattern.MatchString(s.VIN) {
		problems = append(problems, fmt.Sprintf("vin %q is not a 17 character VIN", s.VIN))
	}
	if s.DTCCount < 0 {
		problems = append(problems, "dtcCount must be non-negative")
	}
	if s.Year != nil && (*s.Year < 1900 || *s.Year > 2100) {
		problems = append(problems, fmt.Sprintf("year %d is out of range", *s.Year))
	}
	for name, v := range map[string]*int{
		"mileage":              s.Mileage,
		"distanceSinceCleared": s.DistanceSinceCleared,
		"warmupsSinceCleared":  s.WarmupsSinceCleared,
	} {
		if v != nil && *v < 0 {
			problems = append(problems, name+" must be non-negative")
		}
	}

	codes := map[string][]string{
		"storedDtcCodes":    s.StoredDTCCodes,
		"pendingDtcCodes":   s.PendingDTCCodes,
		"permanentDtcCodes": s.PermanentDTCCodes,
	}
	for name, list := range codes {
		for i, code := range list {
			if !isDTC(code) {
				problems = append(problems, fmt.Sprintf("%s[%d] %q is not a trouble code", name, i, code))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	// Порядок обхода map случаен, сортируем для стабильного текста ошибки.
	slices.Sort(problems)
	return fmt.Errorf("%w: %s", ErrInvalidScan, strings.Join(problems, "; "))
}

// AllCodes возвращает все коды в порядке stored, pending, permanent.
func (s *ScanInput) AllCodes() []string {
	all := make([]string, 0, len(s.StoredDTCCodes)+len(s.PendingDTCCodes)+len(s.PermanentDTCCodes))
	all = append(all, s.StoredDTCCodes...)
	all = append(all, s.PendingDTCCodes...)
	all = append(all, s.PermanentDTCCodes...)
	return all
}

// isDTC проверяет, что код похож на короткую буквенно-цифровую строку (P0420, U0100, B1234-1A и т.п.).
func isDTC(code string) bool {
	if len(code) < 2 || len(code) > 10 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}
