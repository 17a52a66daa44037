package cmd

import (
	"testing"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
)

func TestBuildOrderReport(t *testing.T) {
	folder := newBackupFolder(t)
	writeCSV(t, folder, "Case", []csvio.Row{
		rowWith("Id", "500000000000000001", "Subject", "Broken widget",
			"AccountId", "001000000000000001", "ContactId", "003000000000000001"),
	})

	mock := newTargetOrg()
	mock.AddDescribe(&client.ObjectDescribe{
		Name: "Case",
		Fields: []client.FieldDescribe{
			{Name: "Id", Type: "id", IDLookup: true},
			{Name: "Subject", Type: "string", Createable: true, Nillable: true},
			{Name: "AccountId", Type: "reference", Createable: true,
				ReferenceTo: []string{"Account"}, RelationshipName: "Account"},
			{Name: "ContactId", Type: "reference", Createable: true,
				ReferenceTo: []string{"Contact"}, RelationshipName: "Contact"},
		},
	})

	report, err := buildOrderReport(mock, folder, nil)
	if err != nil {
		t.Fatalf("buildOrderReport: %v", err)
	}

	position := make(map[string]int)
	for i, objectName := range report.Ordered {
		position[objectName] = i
	}
	if position["Account"] > position["Contact"] || position["Contact"] > position["Case"] {
		t.Errorf("expected Account before Contact before Case, got %v", report.Ordered)
	}

	if len(report.Levels) < 2 {
		t.Fatalf("expected at least 2 parallel levels, got %v", report.Levels)
	}
	if report.Levels[0][0] != "Account" {
		t.Errorf("expected Account in first level, got %v", report.Levels[0])
	}
	if len(report.Cycles) != 0 {
		t.Errorf("expected no cycles, got %v", report.Cycles)
	}
}

func TestBuildOrderReportObjectFilter(t *testing.T) {
	folder := newBackupFolder(t)
	mock := newTargetOrg()

	report, err := buildOrderReport(mock, folder, []string{"Account"})
	if err != nil {
		t.Fatalf("buildOrderReport: %v", err)
	}
	if len(report.Ordered) != 1 || report.Ordered[0] != "Account" {
		t.Errorf("expected only Account, got %v", report.Ordered)
	}
}
