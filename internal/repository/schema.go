package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCatalogEntries = `
CREATE TABLE IF NOT EXISTS catalog_entries (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    source TEXT NOT NULL,
    districts TEXT NOT NULL,
    severity_low REAL NOT NULL,
    severity_high REAL NOT NULL,
    rules TEXT NOT NULL,
    playbook TEXT NOT NULL,
    governance TEXT NOT NULL,
    metrics TEXT NOT NULL,
    sla_hours INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_catalog_entries_tenant ON catalog_entries(tenant_id);
CREATE INDEX IF NOT EXISTS idx_catalog_entries_enabled ON catalog_entries(tenant_id, enabled);
CREATE INDEX IF NOT EXISTS idx_catalog_entries_source ON catalog_entries(tenant_id, source);
`

const schemaRiskEntities = `
CREATE TABLE IF NOT EXISTS risk_entities (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    category TEXT NOT NULL,
    level TEXT NOT NULL,
    status TEXT NOT NULL,
    scoring TEXT NOT NULL,
    history TEXT NOT NULL,
    evidence_ids TEXT,
    mitigation_ids TEXT,
    requires_approval INTEGER NOT NULL DEFAULT 0,
    approval TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_entities_tenant ON risk_entities(tenant_id);
CREATE INDEX IF NOT EXISTS idx_risk_entities_subject ON risk_entities(tenant_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_risk_entities_created ON risk_entities(tenant_id, subject_id, created_at);
CREATE INDEX IF NOT EXISTS idx_risk_entities_status ON risk_entities(tenant_id, status);
`

const schemaClassifications = `
CREATE TABLE IF NOT EXISTS classifications (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    detection_id TEXT NOT NULL,
    catalog_id TEXT NOT NULL,
    confidence REAL NOT NULL,
    score REAL NOT NULL,
    triggered_rules TEXT,
    risk_level TEXT NOT NULL,
    business_impact TEXT NOT NULL,
    team TEXT NOT NULL,
    estimated_hours REAL NOT NULL,
    escalation_required INTEGER NOT NULL DEFAULT 0,
    sla_deadline TIMESTAMP NOT NULL,
    classified_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classifications_tenant ON classifications(tenant_id);
CREATE INDEX IF NOT EXISTS idx_classifications_detection ON classifications(tenant_id, detection_id);
CREATE INDEX IF NOT EXISTS idx_classifications_catalog ON classifications(tenant_id, catalog_id);
`

const schemaDetections = `
CREATE TABLE IF NOT EXISTS detections (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    source TEXT NOT NULL,
    district TEXT NOT NULL,
    context TEXT NOT NULL,
    score REAL NOT NULL,
    confidence REAL NOT NULL,
    amount REAL NOT NULL DEFAULT 0,
    finding_codes TEXT,
    payload TEXT,
    received_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detections_tenant ON detections(tenant_id);
CREATE INDEX IF NOT EXISTS idx_detections_subject ON detections(tenant_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_detections_received ON detections(tenant_id, received_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCatalogEntries,
		schemaRiskEntities,
		schemaClassifications,
		schemaDetections,
	}
}
