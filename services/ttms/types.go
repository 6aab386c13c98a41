package ttms

import "strings"

// Upstream rows come from the university's legacy web service and keep its
// Malay field names on the wire. Optional fields arrive as nullable strings.
type (
	authDTO struct {
		SessionID string `json:"session_id"`
	}

	studentDTO struct {
		NoMatrik   string  `json:"no_matrik"`
		Nama       string  `json:"nama"`
		KodKursus  string  `json:"kod_kursus"`
		KodFakulti string  `json:"kod_fakulti"`
		NoKP       *string `json:"no_kp"`
	}

	lecturerDTO struct {
		NoPekerja int    `json:"no_pekerja"`
		Nama      string `json:"nama"`
	}

	courseDTO struct {
		KodSubjek  string `json:"kod_subjek"`
		NamaSubjek string `json:"nama_subjek"`
		Kredit     int    `json:"kredit"`
	}

	sectionDTO struct {
		KodSubjek string  `json:"kod_subjek"`
		Seksyen   string  `json:"seksyen"`
		Pensyarah *string `json:"pensyarah"`
	}

	venueDTO struct {
		KodRuang           string `json:"kod_ruang"`
		NamaRuang          string `json:"nama_ruang"`
		NamaRuangSingkatan string `json:"nama_ruang_singkatan"`
		Kapasiti           int    `json:"kapasiti"`
		JenisRuang         string `json:"jenis_ruang"`
	}

	scheduleDTO struct {
		KodSubjek string    `json:"kod_subjek"`
		Seksyen   string    `json:"seksyen"`
		Hari      int       `json:"hari"`
		Masa      int       `json:"masa"`
		KodRuang  *string   `json:"kod_ruang"`
		Ruang     *venueDTO `json:"ruang"`
	}

	registrationDTO struct {
		NoMatrik  string `json:"no_matrik"`
		Sesi      string `json:"sesi"`
		Semester  int    `json:"semester"`
		KodSubjek string `json:"kod_subjek"`
		Seksyen   string `json:"seksyen"`
	}

	rosterDTO struct {
		Nama string  `json:"nama"`
		NoKP *string `json:"no_kp"`
	}
)

// normalizeKP maps the placeholders upstream uses for an unknown identity
// number to the empty string, which the core treats as "pending backfill".
func normalizeKP(kp *string) string {
	if kp == nil {
		return ""
	}
	s := strings.TrimSpace(*kp)
	switch s {
	case "", "-", "0":
		return ""
	}
	return s
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
