package domain

import (
	"reflect"
	"sort"
	"testing"
)

func TestDeriveJobFor(t *testing.T) {
	cases := []struct {
		name          string
		options       []string
		wantGender    Gender
		wantCertified Certification
	}{
		{
			name:          "normal and certified combine to both",
			options:       []string{"normal", "certified"},
			wantCertified: CertificationBoth,
		},
		{
			name:          "normal and law combine",
			options:       []string{"normal", "certified_in_law"},
			wantCertified: CertificationNormalLaw,
		},
		{
			name:          "normal and health combine",
			options:       []string{"normal", "certified_in_health"},
			wantCertified: CertificationNormalHealth,
		},
		{
			name:          "law alone",
			options:       []string{"certified_in_law"},
			wantCertified: CertificationLaw,
		},
		{
			name:          "health alone",
			options:       []string{"certified_in_health"},
			wantCertified: CertificationHealth,
		},
		{
			name:          "gender rides alongside certification",
			options:       []string{"female", "certified"},
			wantGender:    GenderFemale,
			wantCertified: CertificationCertified,
		},
		{
			name:       "gender only",
			options:    []string{"male"},
			wantGender: GenderMale,
		},
		{
			name:    "empty options leave both unset",
			options: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gender, certified := DeriveJobFor(tc.options)
			if gender != tc.wantGender {
				t.Fatalf("gender = %q, want %q", gender, tc.wantGender)
			}
			if certified != tc.wantCertified {
				t.Fatalf("certified = %q, want %q", certified, tc.wantCertified)
			}
		})
	}
}

func TestDisplayJobForRoundTrip(t *testing.T) {
	optionSets := [][]string{
		{"normal", "certified"},
		{"normal", "certified_in_law"},
		{"normal", "certified_in_health"},
		{"certified"},
		{"certified_in_law"},
		{"certified_in_health"},
		{"normal"},
		{"female", "certified"},
		{"male", "normal", "certified"},
	}

	for _, options := range optionSets {
		gender, certified := DeriveJobFor(options)
		got := DisplayJobFor(gender, certified)

		want := append([]string(nil), options...)
		sort.Strings(want)
		sorted := append([]string(nil), got...)
		sort.Strings(sorted)
		if !reflect.DeepEqual(sorted, want) {
			t.Fatalf("DisplayJobFor(%v) = %v, want a round-trip of %v", options, got, options)
		}
	}
}

func TestKindForConsumerType(t *testing.T) {
	cases := map[string]JobKind{
		"rwsconsumer": JobKindRWS,
		"ngo":         JobKindUnpaid,
		"paid":        JobKindPaid,
		"unknown":     JobKindPaid,
		"":            JobKindPaid,
	}
	for consumerType, want := range cases {
		if got := KindForConsumerType(consumerType); got != want {
			t.Fatalf("KindForConsumerType(%q) = %q, want %q", consumerType, got, want)
		}
	}
}

func TestAcceptedLevels(t *testing.T) {
	cases := []struct {
		certified Certification
		want      []TranslatorLevel
	}{
		{CertificationCertified, []TranslatorLevel{LevelCertified, LevelCertifiedLaw, LevelCertifiedHealth}},
		{CertificationLaw, []TranslatorLevel{LevelCertifiedLaw}},
		{CertificationNormalLaw, []TranslatorLevel{LevelCertifiedLaw}},
		{CertificationHealth, []TranslatorLevel{LevelCertifiedHealth}},
		{CertificationNormalHealth, []TranslatorLevel{LevelCertifiedHealth}},
		{CertificationNormal, []TranslatorLevel{LevelLayman, LevelReadCourses}},
		{CertificationBoth, []TranslatorLevel{LevelCertified, LevelCertifiedLaw, LevelCertifiedHealth, LevelLayman, LevelReadCourses}},
		{CertificationNone, []TranslatorLevel{LevelCertified, LevelCertifiedLaw, LevelCertifiedHealth, LevelLayman, LevelReadCourses}},
	}
	for _, tc := range cases {
		if got := AcceptedLevels(tc.certified); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("AcceptedLevels(%q) = %v, want %v", tc.certified, got, tc.want)
		}
	}
}

func TestLevelAccepted(t *testing.T) {
	if LevelAccepted(CertificationLaw, LevelLayman) {
		t.Fatal("law requirement must reject laymen")
	}
	if !LevelAccepted(CertificationBoth, LevelLayman) {
		t.Fatal("both requirement must accept laymen")
	}
	if !LevelAccepted(CertificationNone, LevelReadCourses) {
		t.Fatal("empty requirement must accept every level")
	}
}
