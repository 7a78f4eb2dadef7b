package limits

// displayNames maps limit names as printed in debug logs to short labels.
var displayNames = map[string]string{
	"Number of SOQL queries":                      "SOQL Queries",
	"Number of query rows":                        "Query Rows",
	"Number of SOSL queries":                      "SOSL Queries",
	"Number of DML statements":                    "DML Statements",
	"Number of Publish Immediate DML":             "Publish Immediate DML",
	"Number of DML rows":                          "DML Rows",
	"Maximum CPU time":                            "CPU Time",
	"Maximum heap size":                           "Heap Size",
	"Number of callouts":                          "Callouts",
	"Number of Email Invocations":                 "Email Invocations",
	"Number of future calls":                      "Future Calls",
	"Number of queueable jobs added to the queue": "Queueable Jobs Added",
	"Number of Mobile Apex push calls":            "Mobile Apex Push Calls",
}

// DisplayName returns the short label for a limit, or the name itself when
// the limit is not known.
func DisplayName(limit string) string {
	if label, ok := displayNames[limit]; ok {
		return label
	}
	return limit
}
