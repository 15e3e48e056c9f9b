package postgres

// bootstrapSQL is run in order by Bootstrap. Every statement is idempotent.
var bootstrapSQL = []string{
	`CREATE TABLE IF NOT EXISTS geoname_locations (
	geoname_id             INT4 PRIMARY KEY,
	continent_code         TEXT,
	city_name              TEXT,
	country_iso_code       TEXT NOT NULL,
	country_name           TEXT NOT NULL,
	subdivision_1_iso_code TEXT,
	subdivision_1_name     TEXT,
	subdivision_2_iso_code TEXT,
	subdivision_2_name     TEXT
)`,
	`CREATE TABLE IF NOT EXISTS geoip_blocks (
	network     INET PRIMARY KEY,
	geoname_id  INT4 NOT NULL,
	postal_code TEXT
)`,
	`CREATE OR REPLACE FUNCTION add_geoname_location(
	p_geoname_id INT4,
	p_continent_code TEXT,
	p_city_name TEXT,
	p_country_iso_code TEXT,
	p_country_name TEXT,
	p_subdivision_1_iso_code TEXT,
	p_subdivision_1_name TEXT,
	p_subdivision_2_iso_code TEXT,
	p_subdivision_2_name TEXT
) RETURNS void LANGUAGE plpgsql AS $$
BEGIN
	INSERT INTO geoname_locations VALUES (
		p_geoname_id, p_continent_code, p_city_name, p_country_iso_code, p_country_name,
		p_subdivision_1_iso_code, p_subdivision_1_name, p_subdivision_2_iso_code, p_subdivision_2_name)
	ON CONFLICT (geoname_id) DO UPDATE SET
		continent_code         = EXCLUDED.continent_code,
		city_name              = EXCLUDED.city_name,
		country_iso_code       = EXCLUDED.country_iso_code,
		country_name           = EXCLUDED.country_name,
		subdivision_1_iso_code = EXCLUDED.subdivision_1_iso_code,
		subdivision_1_name     = EXCLUDED.subdivision_1_name,
		subdivision_2_iso_code = EXCLUDED.subdivision_2_iso_code,
		subdivision_2_name     = EXCLUDED.subdivision_2_name;
END
$$`,
	`CREATE OR REPLACE FUNCTION add_geoip(
	p_network INET,
	p_geoname_id INT4,
	p_postal_code TEXT
) RETURNS void LANGUAGE plpgsql AS $$
BEGIN
	INSERT INTO geoip_blocks VALUES (p_network, p_geoname_id, p_postal_code)
	ON CONFLICT (network) DO UPDATE SET
		geoname_id  = EXCLUDED.geoname_id,
		postal_code = EXCLUDED.postal_code;
END
$$`,
}
