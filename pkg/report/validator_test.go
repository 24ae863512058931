package report

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestCustomValidators(t *testing.T) {
	validate := validator.New()
	for tag, validatorFunc := range customValidators {
		err := validate.RegisterValidation(tag, validatorFunc)
		if err != nil {
			t.Fatalf("couldn't build validator: %v", err)
		}
	}

	report := &HtmlReport{
		Sections: []*Section{{Key: "block_ip", Columns: []string{"Domain"}}},
	}

	setVersion := func(value string) { report.Version = value }
	setArgs := func(value string) { report.Args = strings.Split(value, "|") }
	setSheet := func(value string) { report.Sections[0].Sheet = value }

	testCases := []struct {
		tag    string
		field  string
		setter func(value string)
		value  string
		isBad  bool
	}{
		// cfaudit_version, bad
		{tag: "cfaudit_version", field: "Version", setter: setVersion, value: "v0", isBad: true},
		{tag: "cfaudit_version", field: "Version", setter: setVersion, value: "v1.2.", isBad: true},
		{tag: "cfaudit_version", field: "Version", setter: setVersion, value: "latest", isBad: true},

		// cfaudit_version, good
		{tag: "cfaudit_version", field: "Version", setter: setVersion, value: "unknown", isBad: false},
		{tag: "cfaudit_version", field: "Version", setter: setVersion, value: "v0.4.3", isBad: false},
		{tag: "cfaudit_version", field: "Version", setter: setVersion, value: "v0.4.2-3-gf58cd99", isBad: false},

		// args, bad
		{tag: "args", field: "Args", setter: setArgs, value: "", isBad: true},
		{tag: "args", field: "Args", setter: setArgs, value: "terms", isBad: true},
		{tag: "args", field: "Args", setter: setArgs, value: "-q", isBad: true},
		{tag: "args", field: "Args", setter: setArgs, value: "--terms block_ip", isBad: true},

		// args, good
		{tag: "args", field: "Args", setter: setArgs, value: "--quiet", isBad: false},
		{tag: "args", field: "Args", setter: setArgs, value: "--quiet|--exactTerms", isBad: false},
		{tag: "args", field: "Args", setter: setArgs, value: "--terms=block_ip,allow traffic", isBad: false},
		{tag: "args", field: "Args", setter: setArgs, value: "--workers=4|--exactTerms", isBad: false},

		// sheet_name, bad
		{tag: "sheet_name", field: "Sections[0].Sheet", setter: setSheet, value: "a[b]", isBad: true},
		{tag: "sheet_name", field: "Sections[0].Sheet", setter: setSheet, value: "a/b", isBad: true},
		{tag: "sheet_name", field: "Sections[0].Sheet", setter: setSheet, value: strings.Repeat("x", 32), isBad: true},

		// sheet_name, good
		{tag: "sheet_name", field: "Sections[0].Sheet", setter: setSheet, value: "a_b__c_d_e_f_g", isBad: false},
		{tag: "sheet_name", field: "Sections[0].Sheet", setter: setSheet, value: strings.Repeat("x", 31), isBad: false},
		{tag: "sheet_name", field: "Sections[0].Sheet", setter: setSheet, value: "검색 결과", isBad: false},
	}

	for _, testCase := range testCases {
		testCase.setter(testCase.value)

		err := validate.StructPartial(report, testCase.field)

		var tagFailed bool
		if err != nil {
			for _, fe := range err.(validator.ValidationErrors) {
				if fe.Tag() == testCase.tag {
					tagFailed = true
				}
			}
		}

		if tagFailed != testCase.isBad {
			t.Errorf("tag %s, value %q: got failed=%v, want %v (err: %v)",
				testCase.tag, testCase.value, tagFailed, testCase.isBad, err)
		}
	}
}

func testReport() *HtmlReport {
	return &HtmlReport{
		Title:       "Rule search: block_ip",
		GeneratedAt: "2024-03-15 10:20:30",
		Version:     "unknown",
		Args:        []string{"--terms=block_ip,allow"},
		KeyColumn:   "Search Term",
		Summary: []*SummaryRow{
			{Key: "block_ip", Count: 1, Status: "1 rules found"},
			{Key: "allow", Count: 0, Status: "No rules found"},
		},
		Sections: []*Section{{
			Key:     "block_ip",
			Sheet:   "block_ip",
			Columns: []string{"Domain", "Expression"},
			Rows:    [][]string{{"Account Level", `ip.src in {1.1.1.1} and http.host eq "<x>"`}},
		}},
	}
}

func TestRenderReportToHTML(t *testing.T) {
	buf, err := RenderReportToHTML(testReport())
	if err != nil {
		t.Fatalf("couldn't render report: %v", err)
	}

	page := buf.String()

	for _, want := range []string{"Rule search: block_ip", "Search Term", "No rules found", "Account Level", "&lt;x&gt;"} {
		if !strings.Contains(page, want) {
			t.Errorf("page does not contain %q", want)
		}
	}

	if strings.Contains(page, `"<x>"`) {
		t.Errorf("expression was not escaped")
	}
}

func TestRenderReportToHTMLInvalid(t *testing.T) {
	data := testReport()
	data.Sections[0].Sheet = "bad:name"

	_, err := RenderReportToHTML(data)
	if err == nil {
		t.Fatalf("expected a validation error")
	}

	vErr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("got %T, want *ValidationError", err)
	}

	if fields := vErr.Fields(); len(fields) != 1 || !strings.HasSuffix(fields[0], "Sheet") {
		t.Errorf("unexpected invalid fields: %v", fields)
	}
}
